// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 上下文、轮询与通道等待辅助，供跨包测试消费异步编排结果。
//
// 使用方法:
//
//	ctx := testutil.TestContextWithTimeout(t, time.Minute)
//	ev, ok := testutil.WaitForChannel(events, 2*time.Second)
// =============================================================================
package testutil

import (
	"context"
	"testing"
	"time"
)

// pollInterval 是 WaitFor 检查条件的步长。
const pollInterval = 10 * time.Millisecond

// =============================================================================
// 🎯 上下文辅助
// =============================================================================

// TestContextWithTimeout 返回限时上下文，测试结束时自动取消。
func TestContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// =============================================================================
// ⏱️ 轮询与等待
// =============================================================================

// WaitFor 轮询 condition 直到满足或超时。条件至少检查一次，
// 因此已经成立的条件即便超时极短也会返回 true。
func WaitFor(condition func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if condition() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(pollInterval)
	}
}

// AssertEventuallyTrue 断言 condition 在 timeout 内变为真
func AssertEventuallyTrue(t *testing.T, condition func() bool, timeout time.Duration) {
	t.Helper()
	if !WaitFor(condition, timeout) {
		t.Errorf("condition did not become true within %v", timeout)
	}
}

// WaitForChannel 从 ch 接收一个值，超时返回零值与 false。
func WaitForChannel[T any](ch <-chan T, timeout time.Duration) (T, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case v := <-ch:
		return v, true
	case <-timer.C:
		var zero T
		return zero, false
	}
}
