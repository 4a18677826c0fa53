package metathink

import "errors"

// ErrChainNotFound is returned when a chain name has no configured
// definition; the query planner surfaces it as the fixed "未找到<name>思维
// 链定义" substitution string.
var ErrChainNotFound = errors.New("metathink: chain not found")
