package platform

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// DryRun 是没有接入真实网关时的占位实现：
// 所有操作只打日志并返回合成的 ref，频道/分组状态记在内存里，
// 方便本地联调与 cmd/simulate 全链路跑通。
type DryRun struct {
	StaffUsers map[string]bool // userID -> 是否持有 staff 角色

	mu         sync.Mutex
	seq        int
	categories map[string]string // name -> ref
	sizes      map[string]int    // category ref -> 频道数
	channels   map[string]string // channel ref -> parent category ref
}

func NewDryRun(staffUsers map[string]bool) *DryRun {
	if staffUsers == nil {
		staffUsers = map[string]bool{}
	}
	return &DryRun{
		StaffUsers: staffUsers,
		categories: map[string]string{},
		sizes:      map[string]int{},
		channels:   map[string]string{},
	}
}

func (d *DryRun) nextRef(prefix string) string {
	d.seq++
	return fmt.Sprintf("%s-%04d", prefix, d.seq)
}

func (d *DryRun) SendMessage(_ context.Context, channelRef, content string) error {
	log.Printf("dryrun: send #%s: %s", channelRef, content)
	return nil
}

func (d *DryRun) SendDirectMessage(_ context.Context, userID, content string) error {
	log.Printf("dryrun: dm @%s: %s", userID, content)
	return nil
}

func (d *DryRun) CreateChannel(_ context.Context, spec ChannelSpec) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ref := d.nextRef("chan")
	d.channels[ref] = spec.Parent
	if spec.Parent != "" {
		d.sizes[spec.Parent]++
	}
	log.Printf("dryrun: create channel %s name=%s parent=%s", ref, spec.Name, spec.Parent)
	return ref, nil
}

func (d *DryRun) DeleteChannel(_ context.Context, channelRef string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if parent, ok := d.channels[channelRef]; ok {
		if parent != "" && d.sizes[parent] > 0 {
			d.sizes[parent]--
		}
		delete(d.channels, channelRef)
	}
	log.Printf("dryrun: delete channel %s", channelRef)
	return nil
}

func (d *DryRun) SetChannelParent(_ context.Context, channelRef, categoryRef string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if old, ok := d.channels[channelRef]; ok && old != "" && d.sizes[old] > 0 {
		d.sizes[old]--
	}
	d.channels[channelRef] = categoryRef
	d.sizes[categoryRef]++
	log.Printf("dryrun: reparent channel %s -> %s", channelRef, categoryRef)
	return nil
}

func (d *DryRun) SetPermission(_ context.Context, channelRef string, p Principal, allow, deny []Permission) error {
	log.Printf("dryrun: set permission #%s %s/%s allow=%v deny=%v", channelRef, p.Kind, p.ID, allow, deny)
	return nil
}

func (d *DryRun) FindCategory(_ context.Context, name string) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ref, ok := d.categories[name]
	return ref, ok, nil
}

func (d *DryRun) CreateCategory(_ context.Context, name string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ref, ok := d.categories[name]; ok {
		return ref, nil
	}
	ref := d.nextRef("cat")
	d.categories[name] = ref
	log.Printf("dryrun: create category %s name=%s", ref, name)
	return ref, nil
}

func (d *DryRun) CategorySize(_ context.Context, categoryRef string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sizes[categoryRef], nil
}

func (d *DryRun) HasRole(_ context.Context, userID, roleName string) (bool, error) {
	_ = roleName
	return d.StaffUsers[userID], nil
}

func (d *DryRun) FetchUser(_ context.Context, userID string) (UserRef, error) {
	return UserRef{ID: userID, Tag: userID}, nil
}
