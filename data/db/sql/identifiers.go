package sql

import "strings"

// isSafeIdentifier 判断标识符是否为安全的数据库标识符：
// 允许 foo、table.column 等形式，每段以字母或下划线开头，其后为字母、数字或下划线。
func isSafeIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for _, part := range strings.Split(name, ".") {
		if part == "" {
			return false
		}
		for i := 0; i < len(part); i++ {
			ch := part[i]
			letter := (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_'
			if i == 0 && !letter {
				return false
			}
			if !letter && !(ch >= '0' && ch <= '9') {
				return false
			}
		}
	}
	return true
}

func mustIdentifier(builder, kind, name string) {
	if !isSafeIdentifier(name) {
		panic(builder + ": unsafe " + kind + " name " + name)
	}
}

// inCondition 生成 col IN (?, ?, ...)；vals 为空时返回恒假条件
func inCondition(col string, vals []any) string {
	mustIdentifier("sql", "column", col)
	if len(vals) == 0 {
		return "1 = 0"
	}
	return col + " IN (" + strings.TrimRight(strings.Repeat("?, ", len(vals)), ", ") + ")"
}
