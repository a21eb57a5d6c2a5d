package model

import (
	"math/rand"
	"strconv"
	"strings"
	"time"
)

const orderIDRandomLen = 5

const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// GenerateOrderID 生成形如 ORD-MBX2K1T9-4F7QZ 的订单号：
// 毫秒时间戳的 36 进制 + 5 位随机尾巴，整体大写。
// 时间戳前缀让订单号肉眼可按时间排序，随机尾巴压低同毫秒冲突概率；
// 即便撞号，存储层的唯一约束也会拒绝而不是覆盖。
func GenerateOrderID() string {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 36)

	var b strings.Builder
	b.Grow(orderIDRandomLen)
	for i := 0; i < orderIDRandomLen; i++ {
		b.WriteByte(base36Alphabet[rand.Intn(len(base36Alphabet))])
	}

	return strings.ToUpper("ORD-" + ts + "-" + b.String())
}
