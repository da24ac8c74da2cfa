package handlers

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"lorairo/internal/database"
	"lorairo/internal/search"
)

// maxPageSize bounds the page size a client may ask for.
const maxPageSize = 1000

// SearchRequest is the body of POST /api/images/search.
type SearchRequest struct {
	Conditions search.Conditions `json:"conditions"`
	Page       int               `json:"page,omitempty"`
	PageSize   int               `json:"pageSize,omitempty"`
}

// SearchImages runs a search described by query parameters:
//
//	q             comma-separated keywords
//	type          tags (default) or caption
//	logic         and (default) or or
//	resolution    minimum long edge; renditions of that size are reported
//	from, to      creation date bounds, YYYY-MM-DD or RFC 3339
//	rating        manual rating
//	aiRating      AI rating
//	excludeUnrated, excludeNsfw
//	scoreMin, scoreMax   storage scale [0, 10]
//	sort, desc    sort key and direction
//	page, pageSize
func (h *Handlers) SearchImages(w http.ResponseWriter, r *http.Request) {
	conds, err := conditionsFromQuery(r.URL.Query())
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	page, pageSize, err := h.paging(r.URL.Query())
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.runSearch(w, r, conds, page, pageSize)
}

// SearchImagesJSON runs a search posted as JSON conditions.
func (h *Handlers) SearchImagesJSON(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.PageSize == 0 {
		req.PageSize = h.pageSize
	}
	if req.PageSize < 0 || req.PageSize > maxPageSize {
		writeJSONError(w, fmt.Sprintf("pageSize must be between 1 and %d", maxPageSize), http.StatusBadRequest)
		return
	}
	h.runSearch(w, r, req.Conditions, req.Page, req.PageSize)
}

func (h *Handlers) runSearch(w http.ResponseWriter, r *http.Request, conds search.Conditions, page, pageSize int) {
	result, err := h.processor.ExecuteSearchPage(r.Context(), conds, page, pageSize)
	if err != nil {
		writeServiceError(w, "Search failed", err)
		return
	}
	if result.Rows == nil {
		result.Rows = []database.ImageRow{}
	}
	writeJSONResponse(w, http.StatusOK, result)
}

func (h *Handlers) paging(q url.Values) (page, pageSize int, err error) {
	page, pageSize = 1, h.pageSize
	if v := q.Get("page"); v != "" {
		if page, err = strconv.Atoi(v); err != nil {
			return 0, 0, fmt.Errorf("invalid page %q", v)
		}
	}
	if v := q.Get("pageSize"); v != "" {
		if pageSize, err = strconv.Atoi(v); err != nil || pageSize < 1 || pageSize > maxPageSize {
			return 0, 0, fmt.Errorf("pageSize must be between 1 and %d", maxPageSize)
		}
	}
	return page, pageSize, nil
}

// conditionsFromQuery parses the SearchImages query parameters. Values
// are only checked for syntax here; the search validates their meaning.
func conditionsFromQuery(q url.Values) (search.Conditions, error) {
	c := search.Conditions{
		SearchType: search.SearchType(q.Get("type")),
		Keywords:   search.ParseKeywords(q.Get("q")),
		TagLogic:   database.TagLogic(q.Get("logic")),
		Sort:       database.SortKey(q.Get("sort")),
	}

	var err error
	if v := q.Get("resolution"); v != "" {
		if c.Resolution, err = strconv.Atoi(v); err != nil {
			return c, fmt.Errorf("invalid resolution %q", v)
		}
	}
	if c.DateFrom, err = search.ParseDate(q.Get("from"), false); err != nil {
		return c, err
	}
	if c.DateTo, err = search.ParseDate(q.Get("to"), true); err != nil {
		return c, err
	}
	if v := q.Get("rating"); v != "" {
		c.RatingFilter = &v
	}
	if v := q.Get("aiRating"); v != "" {
		c.AIRatingFilter = &v
	}
	for name, dst := range map[string]*bool{
		"excludeUnrated": &c.ExcludeUnrated,
		"excludeNsfw":    &c.ExcludeNSFW,
		"desc":           &c.SortDesc,
	} {
		if v := q.Get(name); v != "" {
			if *dst, err = strconv.ParseBool(v); err != nil {
				return c, fmt.Errorf("invalid %s %q", name, v)
			}
		}
	}
	for name, dst := range map[string]**float64{"scoreMin": &c.ScoreMin, "scoreMax": &c.ScoreMax} {
		if v := q.Get(name); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return c, fmt.Errorf("invalid %s %q", name, v)
			}
			*dst = &f
		}
	}
	return c, nil
}
