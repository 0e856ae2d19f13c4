package catalog

// PageResult – strona wyników dla list w UI.
type PageResult[T any] struct {
	Items      []T `json:"data"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalPages int `json:"totalPages"`
}

// Paginate tnie listę w pamięci. page liczone od 1; size <= 0 = wszystko.
func Paginate[T any](items []T, page, size int) PageResult[T] {
	total := len(items)
	if size <= 0 {
		size = total
	}
	if page < 1 {
		page = 1
	}
	pages := 0
	if size > 0 {
		pages = total / size
		if total%size != 0 {
			pages++
		}
	}

	// (page-1) <= total/size gwarantuje (page-1)*size <= total, bez przepełnienia
	start, end := total, total
	if size > 0 && page-1 <= total/size {
		start = (page - 1) * size
		end = start + min(size, total-start)
	}
	out := items[start:end]
	if out == nil {
		out = []T{}
	}
	return PageResult[T]{Items: out, Total: total, Page: page, PageSize: size, TotalPages: pages}
}
