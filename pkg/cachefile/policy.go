package cachefile

import (
	"fmt"
	"strings"
	"time"
)

// Policy 描述一条缓存失效规则。集合是封闭的，未知值视为编程错误。
type Policy string

const (
	// PolicySyncOnAppOpen 要求本进程生命周期内至少同步过一次。
	PolicySyncOnAppOpen Policy = "sync_on_app_open"
	// PolicySyncHourly 要求距上次同步不足一小时。
	PolicySyncHourly Policy = "sync_hourly"
	// PolicySyncDaily 要求距上次同步不足一天。
	PolicySyncDaily Policy = "sync_daily"
)

const (
	hourMillis = int64(time.Hour / time.Millisecond)
	dayMillis  = 24 * hourMillis
)

// ParsePolicy 接受不区分大小写的策略名，例如 "sync_hourly" 或 "SYNC_HOURLY"。
func ParsePolicy(raw string) (Policy, error) {
	p := Policy(strings.ToLower(strings.TrimSpace(raw)))
	if !p.Known() {
		return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, raw)
	}
	return p, nil
}

// Known reports whether p belongs to the closed policy set.
func (p Policy) Known() bool {
	switch p {
	case PolicySyncOnAppOpen, PolicySyncHourly, PolicySyncDaily:
		return true
	}
	return false
}

// SyncMetadata 是策略判断所需的同步状态。
type SyncMetadata struct {
	// LastSyncMillis 是最近一次尝试 SyncAll 的 Unix 毫秒时间戳，从未同步时为 0。
	LastSyncMillis int64
	// HasSynced 仅在本进程内成功调用过 SyncAll 后为 true。
	HasSynced bool
}

// IsValid 当且仅当所有策略都成立时返回 true；空策略集恒为 true。
// 遇到未知策略直接 panic。
func IsValid(policies []Policy, meta SyncMetadata, now time.Time) bool {
	elapsed := now.UnixMilli() - meta.LastSyncMillis
	for _, policy := range policies {
		if !checkPolicy(policy, meta, elapsed) {
			return false
		}
	}
	return true
}

func checkPolicy(policy Policy, meta SyncMetadata, elapsed int64) bool {
	switch policy {
	case PolicySyncOnAppOpen:
		return meta.HasSynced
	case PolicySyncHourly:
		return elapsed < hourMillis
	case PolicySyncDaily:
		return elapsed < dayMillis
	default:
		panic(fmt.Sprintf("cachefile: %v: %q", ErrUnknownPolicy, string(policy)))
	}
}

// normalizePolicies 校验并去重，保持首次出现的顺序。
func normalizePolicies(policies []Policy) ([]Policy, error) {
	result := make([]Policy, 0, len(policies))
	seen := make(map[Policy]struct{}, len(policies))
	for _, p := range policies {
		if !p.Known() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, string(p))
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		result = append(result, p)
	}
	return result, nil
}
