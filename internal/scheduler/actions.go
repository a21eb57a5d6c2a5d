package scheduler

import (
	"context"
	"log"

	"ticket_desk/internal/platform"
)

// DeleteChannelAction 延迟删除工单频道（close/cancel 后留 5 秒
// 让最后一条提示消息渲染出来）。频道已经没了就当成功。
func DeleteChannelAction(collab platform.Collaborator) ActionFunc {
	return func(ctx context.Context, orderID string, payload map[string]string) error {
		channelID := payload["channel_id"]
		if channelID == "" {
			log.Printf("scheduler: delete_channel for order %s has no channel, skip", orderID)
			return nil
		}
		if err := collab.DeleteChannel(ctx, channelID); err != nil {
			log.Printf("scheduler: delete channel %s (order %s) already gone or failed: %v", channelID, orderID, err)
		}
		return nil
	}
}

// RevokeAccessAction 完成一段时间后收回发起人的查看/发言权限，
// 并私信邀评。每一步都防御式：频道或用户已不在就记日志继续。
func RevokeAccessAction(collab platform.Collaborator, reviewMessage string) ActionFunc {
	return func(ctx context.Context, orderID string, payload map[string]string) error {
		channelID := payload["channel_id"]
		userID := payload["user_id"]

		if channelID != "" && userID != "" {
			err := collab.SetPermission(ctx, channelID,
				platform.Principal{Kind: platform.PrincipalUser, ID: userID},
				nil,
				[]platform.Permission{platform.PermViewChannel, platform.PermSendMessages},
			)
			if err != nil {
				log.Printf("scheduler: revoke access on %s (order %s): %v", channelID, orderID, err)
			}
		}

		if userID != "" && reviewMessage != "" {
			if err := collab.SendDirectMessage(ctx, userID, reviewMessage); err != nil {
				// 用户关闭私信等情况，吞掉即可
				log.Printf("scheduler: review dm to %s (order %s): %v", userID, orderID, err)
			}
		}
		return nil
	}
}
