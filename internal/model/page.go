package model

// Pagination はページ番号ベースの一覧取得条件と結果件数を表す。
type Pagination struct {
	Number  int // 1始まり
	PerPage int
	Total   int
}

// NewPagination はページ番号を正規化してPaginationを返す。
// 1未満のページ番号は1として扱う。
func NewPagination(number, perPage int) Pagination {
	if number < 1 {
		number = 1
	}
	return Pagination{Number: number, PerPage: perPage}
}

// Offset はSQLのOFFSET値を返す。
func (p Pagination) Offset() int {
	return (p.Number - 1) * p.PerPage
}

// TotalPages は総ページ数を返す。
func (p Pagination) TotalPages() int {
	if p.PerPage <= 0 || p.Total == 0 {
		return 0
	}
	return (p.Total + p.PerPage - 1) / p.PerPage
}
