package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// forUpdate 行级排他读（SELECT ... FOR UPDATE）
// 持有者的事务结束前，其他预留者在同一行上阻塞
//
// sqlite（测试环境）不支持 FOR UPDATE，但写事务本身互斥，语义等价
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "mysql" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// orDefault 仓储方法统一约定：tx 传 nil 时用仓储自己的连接
func orDefault(tx, db *gorm.DB) *gorm.DB {
	if tx == nil {
		return db
	}
	return tx
}
