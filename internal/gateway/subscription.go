package gateway

import (
	"sync"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/sirupsen/logrus"

	"zombiefactory/pkg/models"
)

// Subscription 事件订阅
// 状态只有active和stopped两种，active -> stopped单向，
// 由Unsubscribe触发；stopped标志是订阅中唯一需要同步的状态
type Subscription struct {
	sub    event.Subscription
	logger *logrus.Logger

	stopOnce sync.Once
	done     chan struct{}
}

func newSubscription(sub event.Subscription, logger *logrus.Logger) *Subscription {
	return &Subscription{
		sub:    sub,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Active 订阅是否仍处于活动状态
func (s *Subscription) Active() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Unsubscribe 终止订阅并释放节点侧过滤器资源
// 幂等：重复调用为空操作，不报错
func (s *Subscription) Unsubscribe() {
	s.stopOnce.Do(func() {
		close(s.done)
		if s.sub != nil {
			s.sub.Unsubscribe()
		}
		s.logger.Debug("事件订阅已终止")
	})
}

// dispatch 按节点日志顺序逐条解码并回调
// 解码失败通过onError上报后继续处理后续日志；回调在传输层
// 的goroutine上下文中执行，不引入额外的队列或重排
func (s *Subscription) dispatch(
	logs <-chan types.Log,
	decode func(types.Log) (*models.NewZombieEvent, error),
	onEvent func(*models.NewZombieEvent),
	onError func(error),
) {
	var errCh <-chan error
	if s.sub != nil {
		errCh = s.sub.Err()
	}

	for {
		select {
		case <-s.done:
			return

		case lg, ok := <-logs:
			if !ok {
				return
			}
			// 停止后不再产生任何回调
			select {
			case <-s.done:
				return
			default:
			}

			ev, err := decode(lg)
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onEvent != nil {
				onEvent(ev)
			}

		case err, ok := <-errCh:
			if !ok {
				return
			}
			if err != nil && onError != nil {
				onError(err)
			}
			return
		}
	}
}
