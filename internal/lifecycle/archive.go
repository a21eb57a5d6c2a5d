package lifecycle

import (
	"context"
	"fmt"
	"strings"

	"ticket_desk/internal/platform"
)

// archiveCompletedChannel 把完成的工单频道挪进已完成分组。
// 轮转策略：基础分组占用达到容量上限（默认 50）后，改用带
// 「月-年」后缀的分组（如 completed-orders-august-2026），旧分组
// 的成员保持不动。同月超过两倍容量时继续沿用当月分组——轮转
// 粒度就是自然月。
func (e *Engine) archiveCompletedChannel(ctx context.Context, channelRef string) error {
	categoryRef, err := e.completedCategoryRef(ctx)
	if err != nil {
		return err
	}
	if err := e.collab.SetChannelParent(ctx, channelRef, categoryRef); err != nil {
		// 频道可能已被手动删掉，防御式处理
		return platform.WrapExternal("reparent channel", err)
	}
	return nil
}

func (e *Engine) completedCategoryRef(ctx context.Context) (string, error) {
	base := e.cfg.CompletedCategory

	ref, err := e.ensureCategory(ctx, base)
	if err != nil {
		return "", err
	}
	size, err := e.collab.CategorySize(ctx, ref)
	if err != nil {
		return "", platform.WrapExternal("category size", err)
	}
	if size < e.cfg.CompletedCapacity {
		return ref, nil
	}

	now := e.now()
	rotated := fmt.Sprintf("%s-%s-%d", base, strings.ToLower(now.Month().String()), now.Year())
	return e.ensureCategory(ctx, rotated)
}
