package monitor

import (
	"fmt"
	"sync"
	"time"
)

// Decision 事故确认结果
type Decision int

const (
	DecisionPending Decision = iota
	DecisionConfirmed
	DecisionDismissed
	DecisionTimedOut // 宽限期内无人响应，按确认处理
)

func (d Decision) String() string {
	switch d {
	case DecisionPending:
		return "pending"
	case DecisionConfirmed:
		return "confirmed"
	case DecisionDismissed:
		return "dismissed"
	case DecisionTimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// MarshalText 以小写名称序列化
func (d Decision) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Proceeds 是否继续上传
func (d Decision) Proceeds() bool {
	return d == DecisionConfirmed || d == DecisionTimedOut
}

// gate 一次性的确认结果，第一次 resolve 生效
// 宽限期从创建时开始计时，grace <= 0 时立即超时
type gate struct {
	once     sync.Once
	done     chan struct{}
	decision Decision
}

func newGate(grace time.Duration) *gate {
	g := &gate{done: make(chan struct{})}
	if grace <= 0 {
		g.resolve(DecisionTimedOut)
		return g
	}
	t := time.NewTimer(grace)
	go func() {
		select {
		case <-t.C:
			g.resolve(DecisionTimedOut)
		case <-g.done:
			t.Stop()
		}
	}()
	return g
}

// resolve 返回本次调用是否决定了结果
func (g *gate) resolve(d Decision) bool {
	resolved := false
	g.once.Do(func() {
		g.decision = d
		close(g.done)
		resolved = true
	})
	return resolved
}

// peek 非阻塞读取
func (g *gate) peek() (Decision, bool) {
	select {
	case <-g.done:
		return g.decision, true
	default:
		return DecisionPending, false
	}
}

func (g *gate) wait() Decision {
	<-g.done
	return g.decision
}
