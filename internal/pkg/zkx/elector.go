// internal/pkg/zkx/elector.go
package zkx

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-zookeeper/zk"

	"github.com/Aru0077/shop-service-mysql-sub000/internal/pkg/logger"
)

const electionRoot = "/shop_leader"

// Elector 基于 ZooKeeper 临时节点的领导者选举。
// 订单兜底扫描和库存审计是单例任务，多副本部署时只允许持有者执行。
// 节点消失（会话断开）后自动重新竞选。
type Elector struct {
	conn   *zk.Conn
	path   string
	leader atomic.Bool
}

// NewElector 连接 ZooKeeper 并准备好选举路径。
func NewElector(addrs []string, name string) (*Elector, error) {
	conn, _, err := zk.Connect(addrs, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("zookeeper connect failed: %w", err)
	}
	if _, err := conn.Create(electionRoot, []byte(""), 0, zk.WorldACL(zk.PermAll)); err != nil && err != zk.ErrNodeExists {
		conn.Close()
		return nil, fmt.Errorf("failed to create election root: %w", err)
	}
	return &Elector{conn: conn, path: electionRoot + "/" + name}, nil
}

// Run 持续竞选直到 ctx 结束。阻塞调用，应放在独立 goroutine 中。
func (e *Elector) Run(ctx context.Context) {
	for {
		if err := e.campaign(ctx); err != nil {
			if ctx.Err() != nil {
				e.leader.Store(false)
				return
			}
			logger.Ctx(ctx).Printf("WARN: leader campaign for %s failed: %v. Retrying...", e.path, err)
			select {
			case <-time.After(3 * time.Second):
			case <-ctx.Done():
				e.leader.Store(false)
				return
			}
		}
	}
}

func (e *Elector) campaign(ctx context.Context) error {
	_, err := e.conn.Create(e.path, []byte(""), zk.FlagEphemeral, zk.WorldACL(zk.PermAll))
	switch err {
	case nil:
		// 竞选成功，持有领导权直到自己的节点消失
		e.leader.Store(true)
		logger.Ctx(ctx).Info().Str("path", e.path).Msg("acquired leadership")
		return e.watchOwn(ctx)
	case zk.ErrNodeExists:
		// 已有领导者，监听其节点，等它消失再竞争
		e.leader.Store(false)
		exists, _, ch, werr := e.conn.ExistsW(e.path)
		if werr != nil {
			return werr
		}
		if !exists {
			return nil // 刚好消失，立即重试
		}
		select {
		case <-ch:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	default:
		return err
	}
}

func (e *Elector) watchOwn(ctx context.Context) error {
	for {
		exists, _, ch, err := e.conn.ExistsW(e.path)
		if err != nil {
			e.leader.Store(false)
			return err
		}
		if !exists {
			e.leader.Store(false)
			logger.Ctx(ctx).Printf("WARN: leadership node %s lost", e.path)
			return nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			e.leader.Store(false)
			return ctx.Err()
		}
	}
}

// IsLeader 供周期任务在每个 tick 前检查。
func (e *Elector) IsLeader() bool { return e.leader.Load() }

func (e *Elector) Close() { e.conn.Close() }

// StandaloneElector 在未配置 ZooKeeper 的单副本部署下使用，永远是领导者。
type StandaloneElector struct{}

func (StandaloneElector) IsLeader() bool { return true }
