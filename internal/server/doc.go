// 版权所有 (c) AgentRelay Authors.
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理中继 API 的 HTTP/HTTPS 服务器生命周期。

# 概述

Manager 把 net/http.Server 的监听、运行、关闭与错误上报收拢到
一处。relayd 进程里 API 服务与 metrics 服务各自持有一个实例，
互不干扰地启动与停机。启动为非阻塞式，停机既可由 SIGINT/SIGTERM
信号触发，也可由调用方主动发起。

# 核心类型

  - Config：监听地址、读写与空闲超时、请求头大小上限以及优雅
    关闭的等待时长，ConfigFromServer 可直接从服务配置推导。
  - Manager：服务器管理器，内部持有 http.Server、监听套接字与
    容量为一的异步错误通道。

# 主要能力

  - Start/StartTLS 在后台 goroutine 中运行服务，调用后立即返回；
    TLS 监听默认套用 tlsutil 的加固参数。
  - Shutdown 在 ShutdownTimeout 内排空在途请求，重复调用安全。
  - WaitForShutdown 同时监听退出信号与服务异常，两者任一出现
    即进入优雅关闭。
  - Errors 暴露异步错误通道；IsRunning/Addr/BoundAddr 提供状态
    查询，BoundAddr 在 ":0" 随机端口场景返回真实绑定地址。
*/
package server
