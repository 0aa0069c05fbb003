package repository

import (
	"database/sql"

	sq "github.com/Masterminds/squirrel"
)

// psql はPostgreSQLのプレースホルダ（$1, $2...）でクエリを組み立てる。
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// nullString は空文字列をNULLとして扱うsql.NullStringを返す。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}
