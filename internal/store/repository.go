package store

import (
	"context"
	"errors"
	"log"
	"time"

	"ticket_desk/internal/model"
)

// RemoteAPI 远端文档库契约，便于测试注入失败/录制实现。
type RemoteAPI interface {
	Create(ctx context.Context, orderID string, doc map[string]any) error
	Get(ctx context.Context, orderID string) (map[string]string, bool, error)
	Update(ctx context.Context, orderID string, fields map[string]any) error
	CASStatus(ctx context.Context, orderID string, expected string, fields map[string]any) (bool, error)
	Delete(ctx context.Context, orderID string) error
}

// Repository 双后端订单仓储的唯一入口：
// 远端优先、失败回退本地，调用方只见规范字段（snake_case）。
// 两边允许短暂分叉，不做自动对账；调用必须幂等安全。
type Repository struct {
	remote RemoteAPI // nil 表示远端未配置
	local  *LocalStore
	now    func() time.Time
}

func NewRepository(remote RemoteAPI, local *LocalStore) *Repository {
	return &Repository{remote: remote, local: local, now: time.Now}
}

// WithClock 测试用：替换时间源。
func (r *Repository) WithClock(now func() time.Time) *Repository {
	r.now = now
	return r
}

// Local 暴露本地后端给列表/审计等只走本地的路径。
func (r *Repository) Local() *LocalStore { return r.local }

// CreateOrder 生成订单号并以 pending 初始状态落库。
// 本地为创建路径的权威（删除工单时也从这里删），远端尽力镜像。
func (r *Repository) CreateOrder(ctx context.Context, userID, serviceType, channelID string) (*model.Order, error) {
	o := &model.Order{
		OrderID:     model.GenerateOrderID(),
		UserID:      userID,
		ServiceType: serviceType,
		ChannelID:   channelID,
		Status:      model.StatusPending,
		CreatedAt:   r.now(),
	}
	if err := r.local.Create(o); err != nil {
		return nil, err
	}
	if r.remote != nil {
		if err := r.remote.Create(ctx, o.OrderID, DenormalizeOrder(o)); err != nil {
			log.Printf("repo: remote create failed, local copy kept: %v", err)
		}
	}
	return o, nil
}

// GetOrder 读路径：先查远端，任何远端错误（超时/未配置/报错式 not-found）
// 都记录并回退本地；两边都没有才算 absent。
func (r *Repository) GetOrder(ctx context.Context, orderID string) (*model.Order, bool, error) {
	if r.remote != nil {
		doc, found, err := r.remote.Get(ctx, orderID)
		if err != nil {
			log.Printf("repo: remote get failed, fallback to local: %v", err)
		} else if found {
			return NormalizeDoc(doc), true, nil
		}
	}
	return r.local.Get(orderID)
}

// UpdateOrder 写路径：映射后的字段发远端；映射结果为空时绝不
// 向远端发空载荷，直接写本地。远端成功即不再写本地（远端权威），
// 远端失败则把原始规范字段落到本地。
func (r *Repository) UpdateOrder(ctx context.Context, orderID string, fields map[string]any) error {
	if r.remote != nil {
		mapped := MapToRemoteFields(fields, r.now())
		if len(mapped) > 0 {
			if err := r.remote.Update(ctx, orderID, mapped); err != nil {
				log.Printf("repo: remote update failed, fallback to local: %v", err)
			} else {
				return nil
			}
		} else {
			log.Printf("repo: no mapped fields for remote, writing local only")
		}
	}

	affected, err := r.local.Update(orderID, r.localFields(fields))
	if err != nil {
		return err
	}
	if affected == 0 {
		return wrapStorage("local", "update", ErrNotFound)
	}
	return nil
}

// CASUpdateStatus 状态守卫写：applied=false 表示并发迁移已抢先（先到先得）。
func (r *Repository) CASUpdateStatus(ctx context.Context, orderID string, expected model.Status, fields map[string]any) (bool, error) {
	if r.remote != nil {
		mapped := MapToRemoteFields(fields, r.now())
		applied, err := r.remote.CASStatus(ctx, orderID, string(expected), mapped)
		if err != nil {
			log.Printf("repo: remote cas failed, fallback to local: %v", err)
		} else {
			// 远端成功即权威，同步一份到本地保持回退读可用，
			// 本地失败只记录（接受分叉）。
			if applied {
				if _, lerr := r.local.UpdateWhereStatus(orderID, expected, r.localFields(fields)); lerr != nil {
					log.Printf("repo: local mirror after remote cas failed: %v", lerr)
				}
			}
			return applied, nil
		}
	}

	affected, err := r.local.UpdateWhereStatus(orderID, expected, r.localFields(fields))
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// DeleteOrder 双端删除；远端失败只记录，本地删除是权威。
func (r *Repository) DeleteOrder(ctx context.Context, orderID string) error {
	if r.remote != nil {
		if err := r.remote.Delete(ctx, orderID); err != nil {
			log.Printf("repo: remote delete failed: %v", err)
		}
	}
	affected, err := r.local.Delete(orderID)
	if err != nil {
		return err
	}
	if affected == 0 {
		return wrapStorage("local", "delete", ErrNotFound)
	}
	return nil
}

// ListOrders 列表只走本地（远端索引不分页，列表是运维侧功能）。
func (r *Repository) ListOrders(status model.Status, page, pageSize int) ([]model.Order, int64, error) {
	if page < 0 {
		page = 0
	}
	total, err := r.local.CountByStatus(status)
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.local.ListByStatus(status, page*pageSize, pageSize)
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// localFields 本地写之前统一时间字段表示：
// completed_at 与远端一样由仓储层重算，避免两边时钟口径不一致。
func (r *Repository) localFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if k == "completed_at" {
			out[k] = r.now()
			continue
		}
		if s, ok := v.(model.Status); ok {
			out[k] = string(s)
			continue
		}
		out[k] = v
	}
	return out
}

// IsNotFound 判定仓储错误是否为「订单不存在」。
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
