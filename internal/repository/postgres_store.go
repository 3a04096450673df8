package repository

import "database/sql"

// NewPostgresStore はdatabase/sqlバックエンドのStoreを生成する。
func NewPostgresStore(db *sql.DB) Store {
	return Store{
		Users:    NewPostgresUserRepo(db),
		Accounts: NewPostgresAccountRepo(db),
		Sessions: NewPostgresSessionRepo(db),
	}
}
