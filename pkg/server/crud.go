package server

import (
	"net/http"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/mockenv/mockenv/internal/matching"
	"github.com/mockenv/mockenv/internal/selector"
	"github.com/mockenv/mockenv/pkg/template"
)

const defaultCrudKey = "id"

var searchRegexps = matching.NewRegexCache()

// crudOutcome is the result of a CRUD action on a bucket value.
type crudOutcome struct {
	value   any
	changed bool
	body    any
	status  int
	headers map[string]string
}

// crudInput is what a CRUD action reads from the request.
type crudInput struct {
	body  any
	query url.Values
	id    string
	key   string
}

// crud runs action against the bucket and returns the body to send. It
// reports false when the bucket does not exist.
func (s *Server) crud(x *exchange, action crudAction, bucketID, id, key string, tctx *template.Context, rstate *template.ResponseState) (string, bool) {
	buckets := x.st.run.Buckets
	in := crudInput{
		body:  crudBody(x),
		query: x.r.URL.Query(),
		id:    id,
		key:   key,
	}

	var out crudOutcome
	if action == crudList || action == crudGetByID {
		cur, ok := buckets.Lookup(bucketID, tctx)
		if !ok {
			return "", false
		}
		out = applyCRUD(action, cur, in)
	} else {
		ok := buckets.Update(bucketID, tctx, func(cur any) any {
			out = applyCRUD(action, cur, in)
			if !out.changed {
				return cur
			}
			return out.value
		})
		if !ok {
			return "", false
		}
	}

	h := x.w.Header()
	h.Set("Content-Type", "application/json")
	for k, v := range out.headers {
		h.Set(k, v)
	}
	if out.status != 0 {
		rstate.Status = out.status
	}
	return matching.Stringify(out.body), true
}

// crudBody is the parsed request body, the raw body when it did not
// parse, or an empty object.
func crudBody(x *exchange) any {
	if x.req.Body != nil {
		return x.req.Body
	}
	if len(x.body) > 0 {
		return string(x.body)
	}
	return map[string]any{}
}

// applyCRUD computes an action without modifying cur.
func applyCRUD(action crudAction, cur any, in crudInput) crudOutcome {
	arr, isArray := cur.([]any)
	out := crudOutcome{body: cur}

	switch action {
	case crudList:
		if !isArray {
			return out
		}
		out.headers = map[string]string{"X-Total-Count": strconv.Itoa(len(arr))}
		items := filterItems(arr, in.query)
		out.headers["X-Filtered-Count"] = strconv.Itoa(len(items))
		if field := in.query.Get("sort"); field != "" {
			sortItems(items, field, strings.EqualFold(in.query.Get("order"), "desc"))
		}
		out.body = paginate(items, in.query)

	case crudGetByID:
		if !isArray {
			return out
		}
		if i := findItem(arr, in.id, in.key); i >= 0 {
			out.body = arr[i]
		} else {
			out.body, out.status = map[string]any{}, http.StatusNotFound
		}

	case crudCreate:
		out.changed = true
		out.status = http.StatusCreated
		if !isArray {
			out.value, out.body = in.body, in.body
			return out
		}
		item := in.body
		if obj, ok := item.(map[string]any); ok {
			if _, has := selector.Get(obj, in.key); !has {
				item, _ = selector.Set(obj, in.key, nextID(arr, in.key))
			}
		}
		out.value = append(slices.Clone(arr), item)
		out.body = item

	case crudUpdate:
		out.changed = true
		out.value, out.body = in.body, in.body

	case crudUpdateByID:
		if !isArray {
			out.changed = true
			out.value, out.body = in.body, in.body
			return out
		}
		i := findItem(arr, in.id, in.key)
		if i < 0 {
			out.body, out.status = map[string]any{}, http.StatusNotFound
			return out
		}
		item := in.body
		if _, isObj := arr[i].(map[string]any); isObj {
			obj, ok := in.body.(map[string]any)
			if !ok {
				obj = map[string]any{}
			}
			item = obj
			if _, has := selector.Get(obj, in.key); !has {
				current, _ := selector.Get(arr[i], in.key)
				item, _ = selector.Set(obj, in.key, current)
			}
		}
		out.changed = true
		out.value = replaceAt(arr, i, item)
		out.body = item

	case crudUpdateMerge:
		out.changed = true
		out.value = merge(cur, in.body)
		out.body = out.value

	case crudUpdateMergeByID:
		if !isArray {
			out.changed = true
			out.value = merge(cur, in.body)
			out.body = out.value
			return out
		}
		i := findItem(arr, in.id, in.key)
		if i < 0 {
			out.body, out.status = map[string]any{}, http.StatusNotFound
			return out
		}
		item := in.body
		if _, isObj := arr[i].(map[string]any); isObj {
			item = merge(arr[i], in.body)
		}
		out.changed = true
		out.value = replaceAt(arr, i, item)
		out.body = item

	case crudDelete:
		out.changed = true
		out.value = nil
		out.body = map[string]any{}

	case crudDeleteByID:
		if !isArray {
			out.changed = true
			out.value = nil
			out.body = map[string]any{}
			return out
		}
		i := findItem(arr, in.id, in.key)
		if i < 0 {
			out.body, out.status = map[string]any{}, http.StatusNotFound
			return out
		}
		out.changed = true
		out.value = slices.Delete(slices.Clone(arr), i, i+1)
		out.body = map[string]any{}
	}
	if out.changed && out.status == 0 {
		out.status = http.StatusOK
	}
	return out
}

// findItem returns the index of the item whose key equals id. Arrays of
// primitives are addressed by position.
func findItem(arr []any, id, key string) int {
	for i, item := range arr {
		switch item.(type) {
		case map[string]any, []any:
			v, ok := selector.Get(item, key)
			if ok && v != nil && matching.Stringify(v) == id {
				return i
			}
		default:
			if n, err := strconv.Atoi(id); err == nil && n == i {
				return i
			}
		}
	}
	return -1
}

// nextID returns the highest numeric key plus one, or a UUID when no
// item has a numeric key.
func nextID(arr []any, key string) any {
	highest, found := 0.0, false
	for _, item := range arr {
		v, ok := selector.Get(item, key)
		if !ok {
			continue
		}
		if n, isNum := v.(float64); isNum && (!found || n > highest) {
			highest, found = n, true
		}
	}
	if !found {
		return uuid.NewString()
	}
	return highest + 1
}

func replaceAt(arr []any, i int, item any) []any {
	out := slices.Clone(arr)
	out[i] = item
	return out
}

// merge concatenates arrays and shallow merges objects. Anything else is
// replaced by patch.
func merge(cur, patch any) any {
	switch c := cur.(type) {
	case []any:
		if p, ok := patch.([]any); ok {
			return append(slices.Clone(c), p...)
		}
	case map[string]any:
		p, ok := patch.(map[string]any)
		if !ok {
			return c
		}
		out := make(map[string]any, len(c)+len(p))
		for k, v := range c {
			out[k] = v
		}
		for k, v := range p {
			out[k] = v
		}
		return out
	}
	return patch
}

// filterOps are the query parameter suffixes filtering a list:
// "price_gte=10" keeps items whose price is at least 10.
var filterOps = []string{"_eq", "_ne", "_gte", "_gt", "_lte", "_lt", "_like", "_start", "_end"}

type itemFilter struct {
	path  string
	op    string
	value string
}

// filterItems applies the search and field filters of query.
func filterItems(arr []any, query url.Values) []any {
	var search *regexp.Regexp
	if q := query.Get("search"); q != "" {
		re, err := searchRegexps.Get(q, true)
		if err != nil {
			re, _ = searchRegexps.Get(regexp.QuoteMeta(q), true)
		}
		search = re
	}
	filters := parseFilters(query)

	out := make([]any, 0, len(arr))
	for _, item := range arr {
		if search != nil && !fullTextMatch(item, search) {
			continue
		}
		if !matchFilters(item, filters) {
			continue
		}
		out = append(out, item)
	}
	return out
}

func parseFilters(query url.Values) []itemFilter {
	var out []itemFilter
	for param, values := range query {
		for _, op := range filterOps {
			path, ok := strings.CutSuffix(param, op)
			if !ok || path == "" {
				continue
			}
			for _, v := range values {
				out = append(out, itemFilter{path: path, op: op[1:], value: v})
			}
			break
		}
	}
	return out
}

func matchFilters(item any, filters []itemFilter) bool {
	for _, f := range filters {
		v, ok := selector.Get(item, f.path)
		if !ok {
			if f.op == "ne" {
				continue
			}
			return false
		}
		if !f.match(v) {
			return false
		}
	}
	return true
}

func (f itemFilter) match(v any) bool {
	switch f.op {
	case "eq":
		return matching.LooseEqual(v, f.value)
	case "ne":
		return !matching.LooseEqual(v, f.value)
	case "like":
		return strings.Contains(strings.ToLower(matching.Stringify(v)), strings.ToLower(f.value))
	case "start":
		return strings.HasPrefix(strings.ToLower(matching.Stringify(v)), strings.ToLower(f.value))
	case "end":
		return strings.HasSuffix(strings.ToLower(matching.Stringify(v)), strings.ToLower(f.value))
	}
	c := compareValues(v, f.value)
	switch f.op {
	case "gt":
		return c > 0
	case "gte":
		return c >= 0
	case "lt":
		return c < 0
	case "lte":
		return c <= 0
	}
	return false
}

// fullTextMatch reports whether any string or number inside v matches re.
func fullTextMatch(v any, re *regexp.Regexp) bool {
	switch t := v.(type) {
	case map[string]any:
		for _, child := range t {
			if fullTextMatch(child, re) {
				return true
			}
		}
	case []any:
		for _, child := range t {
			if fullTextMatch(child, re) {
				return true
			}
		}
	case string:
		return re.MatchString(t)
	case float64:
		return re.MatchString(matching.Stringify(t))
	}
	return false
}

// sortItems sorts in place by the value at field, or by the items
// themselves for primitives. Strings compare case-insensitively.
func sortItems(items []any, field string, desc bool) {
	key := func(item any) any {
		switch item.(type) {
		case map[string]any, []any:
			v, _ := selector.Get(item, field)
			return v
		}
		return item
	}
	slices.SortStableFunc(items, func(a, b any) int {
		c := compareValues(key(a), key(b))
		if desc {
			return -c
		}
		return c
	})
}

// compareValues orders numbers numerically and anything else by
// lowercased string form.
func compareValues(a, b any) int {
	if x, ok := matching.ToFloat64(a); ok {
		if y, ok := matching.ToFloat64(b); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(strings.ToLower(matching.Stringify(a)), strings.ToLower(matching.Stringify(b)))
}

// paginate slices items when limit or page is given. Limit defaults to
// 10 and page to 1.
func paginate(items []any, query url.Values) []any {
	if !query.Has("limit") && !query.Has("page") {
		return items
	}
	limit, err := strconv.Atoi(query.Get("limit"))
	if err != nil || limit <= 0 {
		limit = 10
	}
	page, err := strconv.Atoi(query.Get("page"))
	if err != nil || page <= 0 {
		page = 1
	}
	start := (page - 1) * limit
	if start >= len(items) {
		return []any{}
	}
	return items[start:min(start+limit, len(items))]
}
