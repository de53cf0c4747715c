package consts

const (
	CommBranchChannel   = "comm:branch:"        // 分校维度的变更推送频道
	CommViewingKey      = "comm:viewing:"       // 会话线程正在展示
	CommOpenDebounceKey = "comm:open:debounce:" // 打开会话去抖
	CommRepairLock      = "comm:repair:lock"
)

const (
	TokenBlacklistKey = "auth:token:revoked:" // 已注销 Token 的签名
)
