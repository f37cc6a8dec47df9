package agent

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"context"
)

// DataProcessor is the data_processor built-in: filter/sort/group_by/
// aggregate/transform/join/pivot/clean/sample/statistics over a table
// of records, grounded on original_source's data_processor.py (which
// delegates all of this to pandas — here done over plain
// []map[string]interface{} rows since there is no pandas-equivalent
// dependency in the retrieved pack).
type DataProcessor struct{}

func NewDataProcessor() *DataProcessor { return &DataProcessor{} }

func (p *DataProcessor) Execute(ctx context.Context, cfg map[string]interface{}, input map[string]interface{}) (Result, error) {
	started := time.Now()

	rows, err := toRows(input["data"])
	if err != nil {
		return Result{}, &Error{Kind: KindInvalidInput, Message: err.Error()}
	}
	operation, _ := input["operation"].(string)
	if operation == "" {
		return Result{}, &Error{Kind: KindInvalidInput, Message: "no operation specified"}
	}
	parameters, _ := input["parameters"].(map[string]interface{})
	if parameters == nil {
		parameters = map[string]interface{}{}
	}

	originalShape := len(rows)
	var result []map[string]interface{}

	switch operation {
	case "filter":
		result = filterRows(rows, parameters)
	case "sort":
		result = sortRows(rows, parameters)
	case "group_by":
		result = groupRows(rows, parameters)
	case "aggregate":
		result = aggregateRows(rows, parameters)
	case "transform":
		result = transformRows(rows, parameters)
	case "join":
		result = joinRows(rows, parameters)
	case "pivot":
		result = pivotRows(rows, parameters)
	case "clean":
		result = cleanRows(rows, parameters)
	case "sample":
		result = sampleRows(rows, parameters)
	case "statistics":
		result = statisticsRows(rows, parameters)
	default:
		return Result{}, &Error{Kind: KindInvalidInput, Message: "unsupported operation: " + operation}
	}

	outputFormat, _ := parameters["output_format"].(string)
	formatted := formatOutput(result, outputFormat)
	columns := columnNames(result)

	return Result{
		Output: map[string]interface{}{
			"data": formatted,
			"metadata": map[string]interface{}{
				"original_shape": originalShape,
				"result_shape":    len(result),
				"columns":         columns,
			},
			"operation": operation,
			"timestamp": time.Now().Format(time.RFC3339),
		},
		Variables: map[string]interface{}{
			"processed_rows":    len(result),
			"columns_count":     len(columns),
			"operation_success": true,
		},
		Metadata: newMetadata(started),
	}, nil
}

// toRows auto-detects the input data shape: a list of dicts, a dict, a
// bare list of scalars, or a CSV/JSON string.
func toRows(data interface{}) ([]map[string]interface{}, error) {
	switch v := data.(type) {
	case nil:
		return nil, fmt.Errorf("no data provided for processing")
	case []map[string]interface{}:
		return v, nil
	case []interface{}:
		rows := make([]map[string]interface{}, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]interface{}); ok {
				rows = append(rows, m)
			} else {
				rows = append(rows, map[string]interface{}{"values": item})
			}
		}
		return rows, nil
	case map[string]interface{}:
		return []map[string]interface{}{v}, nil
	case string:
		var parsed []map[string]interface{}
		if err := json.Unmarshal([]byte(v), &parsed); err == nil {
			return parsed, nil
		}
		var single map[string]interface{}
		if err := json.Unmarshal([]byte(v), &single); err == nil {
			return []map[string]interface{}{single}, nil
		}
		return parseCSV(v)
	default:
		return nil, fmt.Errorf("unsupported data type: %T", data)
	}
}

func parseCSV(s string) ([]map[string]interface{}, error) {
	r := csv.NewReader(strings.NewReader(s))
	records, err := r.ReadAll()
	if err != nil || len(records) == 0 {
		return nil, fmt.Errorf("unable to parse data as JSON or CSV")
	}
	header := records[0]
	rows := make([]map[string]interface{}, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(map[string]interface{}, len(header))
		for i, h := range header {
			if i < len(rec) {
				row[h] = inferScalar(rec[i])
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func inferScalar(s string) interface{} {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}

func columnNames(rows []map[string]interface{}) []string {
	seen := map[string]bool{}
	var cols []string
	for _, r := range rows {
		for k := range r {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	sort.Strings(cols)
	return cols
}

func filterRows(rows []map[string]interface{}, params map[string]interface{}) []map[string]interface{} {
	conditions, _ := params["conditions"].([]interface{})
	out := rows
	for _, cRaw := range conditions {
		cond, ok := cRaw.(map[string]interface{})
		if !ok {
			continue
		}
		column, _ := cond["column"].(string)
		op, _ := cond["operator"].(string)
		value := cond["value"]
		out = filterByCondition(out, column, op, value)
	}
	return out
}

func filterByCondition(rows []map[string]interface{}, column, op string, value interface{}) []map[string]interface{} {
	var out []map[string]interface{}
	for _, row := range rows {
		v, present := row[column]
		if !present {
			continue
		}
		keep := false
		switch op {
		case "equals":
			keep = fmt.Sprint(v) == fmt.Sprint(value)
		case "not_equals":
			keep = fmt.Sprint(v) != fmt.Sprint(value)
		case "greater_than":
			vf, vok := toFloat(v)
			wf, wok := toFloat(value)
			keep = vok && wok && vf > wf
		case "less_than":
			vf, vok := toFloat(v)
			wf, wok := toFloat(value)
			keep = vok && wok && vf < wf
		case "contains":
			keep = v != nil && strings.Contains(fmt.Sprint(v), fmt.Sprint(value))
		case "in":
			keep = valueIn(v, value)
		default:
			keep = true
		}
		if keep {
			out = append(out, row)
		}
	}
	return out
}

func valueIn(v, set interface{}) bool {
	items, ok := set.([]interface{})
	if !ok {
		return fmt.Sprint(v) == fmt.Sprint(set)
	}
	for _, item := range items {
		if fmt.Sprint(item) == fmt.Sprint(v) {
			return true
		}
	}
	return false
}

func sortRows(rows []map[string]interface{}, params map[string]interface{}) []map[string]interface{} {
	sortBy := toStringSlice(params["sort_by"])
	if len(sortBy) == 0 {
		return rows
	}
	ascending := toBoolSlice(params["ascending"], len(sortBy))

	out := make([]map[string]interface{}, len(rows))
	copy(out, rows)
	sort.SliceStable(out, func(i, j int) bool {
		for k, col := range sortBy {
			vi, vj := out[i][col], out[j][col]
			cmp := compareValues(vi, vj)
			if cmp == 0 {
				continue
			}
			if k < len(ascending) && !ascending[k] {
				cmp = -cmp
			}
			return cmp < 0
		}
		return false
	})
	return out
}

func compareValues(a, b interface{}) int {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	as, bs := fmt.Sprint(a), fmt.Sprint(b)
	return strings.Compare(as, bs)
}

func toStringSlice(v interface{}) []string {
	switch val := v.(type) {
	case string:
		return []string{val}
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, item := range val {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case []string:
		return val
	}
	return nil
}

func toBoolSlice(v interface{}, n int) []bool {
	switch val := v.(type) {
	case bool:
		out := make([]bool, n)
		for i := range out {
			out[i] = val
		}
		return out
	case []interface{}:
		out := make([]bool, 0, len(val))
		for _, item := range val {
			b, _ := item.(bool)
			out = append(out, b)
		}
		return out
	}
	out := make([]bool, n)
	for i := range out {
		out[i] = true
	}
	return out
}

func groupRows(rows []map[string]interface{}, params map[string]interface{}) []map[string]interface{} {
	groupBy := toStringSlice(params["group_by"])
	if len(groupBy) == 0 {
		return rows
	}
	aggs, _ := params["aggregations"].(map[string]interface{})
	if aggs == nil {
		aggs = map[string]interface{}{"count": "size"}
	}

	type group struct {
		key  []string
		rows []map[string]interface{}
	}
	order := []string{}
	groups := map[string]*group{}
	for _, row := range rows {
		key := groupKey(row, groupBy)
		if _, ok := groups[key]; !ok {
			groups[key] = &group{key: keyParts(row, groupBy)}
			order = append(order, key)
		}
		groups[key].rows = append(groups[key].rows, row)
	}

	out := make([]map[string]interface{}, 0, len(order))
	for _, k := range order {
		g := groups[k]
		rec := make(map[string]interface{}, len(groupBy)+len(aggs))
		for i, col := range groupBy {
			rec[col] = g.key[i]
		}
		for name, spec := range aggs {
			applyGroupAgg(rec, g.rows, name, spec)
		}
		out = append(out, rec)
	}
	return out
}

func applyGroupAgg(rec map[string]interface{}, rows []map[string]interface{}, name string, spec interface{}) {
	switch s := spec.(type) {
	case string:
		if s == "size" {
			rec[name] = len(rows)
			return
		}
		rec[name] = aggregateColumn(rows, name, s)
	case map[string]interface{}:
		for column, funcRaw := range s {
			fn, _ := funcRaw.(string)
			rec[column+"_"+fn] = aggregateColumn(rows, column, fn)
		}
	}
}

func aggregateColumn(rows []map[string]interface{}, column, fn string) interface{} {
	values := numericColumn(rows, column)
	switch fn {
	case "mean":
		return mean(values)
	case "sum":
		return sum(values)
	case "count":
		return len(rows)
	case "min":
		return minOf(values)
	case "max":
		return maxOf(values)
	default:
		return nil
	}
}

func groupKey(row map[string]interface{}, cols []string) string {
	parts := keyParts(row, cols)
	return strings.Join(parts, "\x00")
}

func keyParts(row map[string]interface{}, cols []string) []string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = fmt.Sprint(row[c])
	}
	return parts
}

func aggregateRows(rows []map[string]interface{}, params map[string]interface{}) []map[string]interface{} {
	aggs, _ := params["aggregations"].(map[string]interface{})
	cols := columnNames(rows)
	if len(aggs) == 0 {
		rec := map[string]interface{}{}
		for _, c := range cols {
			values := numericColumn(rows, c)
			if len(values) == 0 {
				continue
			}
			rec[c+"_mean"] = mean(values)
			rec[c+"_sum"] = sum(values)
			rec[c+"_count"] = len(values)
		}
		return []map[string]interface{}{rec}
	}
	rec := map[string]interface{}{}
	for column, fnsRaw := range aggs {
		fns := toStringSlice(fnsRaw)
		for _, fn := range fns {
			rec[column+"_"+fn] = aggregateColumn(rows, column, fn)
		}
	}
	return []map[string]interface{}{rec}
}

func numericColumn(rows []map[string]interface{}, column string) []float64 {
	var out []float64
	for _, row := range rows {
		if f, ok := toFloat(row[column]); ok {
			out = append(out, f)
		}
	}
	return out
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	return sum(v) / float64(len(v))
}

func sum(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x
	}
	return s
}

func minOf(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	m := v[0]
	for _, x := range v {
		if x < m {
			m = x
		}
	}
	return m
}

func maxOf(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	m := v[0]
	for _, x := range v {
		if x > m {
			m = x
		}
	}
	return m
}

func stddev(v []float64) float64 {
	if len(v) < 2 {
		return 0
	}
	m := mean(v)
	var ss float64
	for _, x := range v {
		ss += (x - m) * (x - m)
	}
	return math.Sqrt(ss / float64(len(v)-1))
}

func transformRows(rows []map[string]interface{}, params map[string]interface{}) []map[string]interface{} {
	transforms, _ := params["transformations"].([]interface{})
	out := make([]map[string]interface{}, len(rows))
	for i, row := range rows {
		rec := make(map[string]interface{}, len(row))
		for k, v := range row {
			rec[k] = v
		}
		out[i] = rec
	}
	for _, tRaw := range transforms {
		t, ok := tRaw.(map[string]interface{})
		if !ok {
			continue
		}
		op, _ := t["operation"].(string)
		column, _ := t["column"].(string)
		target, _ := t["target_column"].(string)
		if target == "" {
			target = column
		}
		value := t["value"]
		applyRowTransform(out, op, column, target, value)
	}
	return out
}

func applyRowTransform(rows []map[string]interface{}, op, column, target string, value interface{}) {
	switch op {
	case "add":
		vf, _ := toFloat(value)
		for _, row := range rows {
			if f, ok := toFloat(row[column]); ok {
				row[target] = f + vf
			}
		}
	case "multiply":
		vf, _ := toFloat(value)
		for _, row := range rows {
			if f, ok := toFloat(row[column]); ok {
				row[target] = f * vf
			}
		}
	case "uppercase":
		for _, row := range rows {
			row[target] = strings.ToUpper(fmt.Sprint(row[column]))
		}
	case "lowercase":
		for _, row := range rows {
			row[target] = strings.ToLower(fmt.Sprint(row[column]))
		}
	case "normalize":
		values := numericColumn(rows, column)
		min, max := minOf(values), maxOf(values)
		span := max - min
		for _, row := range rows {
			if f, ok := toFloat(row[column]); ok && span != 0 {
				row[target] = (f - min) / span
			}
		}
	case "standardize":
		values := numericColumn(rows, column)
		m, sd := mean(values), stddev(values)
		for _, row := range rows {
			if f, ok := toFloat(row[column]); ok && sd != 0 {
				row[target] = (f - m) / sd
			}
		}
	}
}

func cleanRows(rows []map[string]interface{}, params map[string]interface{}) []map[string]interface{} {
	ops := toStringSlice(params["operations"])
	if len(ops) == 0 {
		ops = []string{"remove_duplicates", "handle_missing"}
	}
	out := rows
	for _, op := range ops {
		switch op {
		case "remove_duplicates":
			out = removeDuplicates(out)
		case "handle_missing":
			strategy, _ := params["missing_strategy"].(string)
			if strategy == "" {
				strategy = "drop"
			}
			out = handleMissing(out, strategy)
		case "remove_outliers":
			out = removeOutliers(out)
		}
	}
	return out
}

func removeDuplicates(rows []map[string]interface{}) []map[string]interface{} {
	seen := map[string]bool{}
	var out []map[string]interface{}
	for _, row := range rows {
		key := fmt.Sprint(row)
		if !seen[key] {
			seen[key] = true
			out = append(out, row)
		}
	}
	return out
}

func handleMissing(rows []map[string]interface{}, strategy string) []map[string]interface{} {
	cols := columnNames(rows)
	switch strategy {
	case "drop":
		var out []map[string]interface{}
		for _, row := range rows {
			complete := true
			for _, c := range cols {
				if row[c] == nil {
					complete = false
					break
				}
			}
			if complete {
				out = append(out, row)
			}
		}
		return out
	case "forward_fill", "backward_fill":
		out := make([]map[string]interface{}, len(rows))
		copy(out, rows)
		idxs := make([]int, len(out))
		for i := range idxs {
			idxs[i] = i
		}
		if strategy == "backward_fill" {
			for i, j := 0, len(idxs)-1; i < j; i, j = i+1, j-1 {
				idxs[i], idxs[j] = idxs[j], idxs[i]
			}
		}
		last := map[string]interface{}{}
		for _, i := range idxs {
			row := make(map[string]interface{}, len(out[i]))
			for k, v := range out[i] {
				row[k] = v
			}
			for _, c := range cols {
				if row[c] == nil {
					if v, ok := last[c]; ok {
						row[c] = v
					}
				} else {
					last[c] = row[c]
				}
			}
			out[i] = row
		}
		return out
	case "mean":
		out := make([]map[string]interface{}, len(rows))
		for i, row := range rows {
			rec := make(map[string]interface{}, len(row))
			for k, v := range row {
				rec[k] = v
			}
			out[i] = rec
		}
		for _, c := range cols {
			values := numericColumn(out, c)
			if len(values) == 0 {
				continue
			}
			m := mean(values)
			for _, row := range out {
				if row[c] == nil {
					row[c] = m
				}
			}
		}
		return out
	}
	return rows
}

func removeOutliers(rows []map[string]interface{}) []map[string]interface{} {
	cols := columnNames(rows)
	out := rows
	for _, c := range cols {
		values := numericColumn(out, c)
		if len(values) < 4 {
			continue
		}
		sorted := append([]float64(nil), values...)
		sort.Float64s(sorted)
		q1 := quantile(sorted, 0.25)
		q3 := quantile(sorted, 0.75)
		iqr := q3 - q1
		lower, upper := q1-1.5*iqr, q3+1.5*iqr
		var filtered []map[string]interface{}
		for _, row := range out {
			f, ok := toFloat(row[c])
			if !ok || (f >= lower && f <= upper) {
				filtered = append(filtered, row)
			}
		}
		out = filtered
	}
	return out
}

func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

func sampleRows(rows []map[string]interface{}, params map[string]interface{}) []map[string]interface{} {
	method, _ := params["method"].(string)
	if method == "" {
		method = "random"
	}
	size := intOr(params["size"], 100)
	if size > len(rows) {
		size = len(rows)
	}

	switch method {
	case "head":
		return rows[:size]
	case "tail":
		return rows[len(rows)-size:]
	case "stratified":
		column, _ := params["stratify_column"].(string)
		if column == "" {
			break
		}
		groups := map[string][]map[string]interface{}{}
		var order []string
		for _, row := range rows {
			key := fmt.Sprint(row[column])
			if _, ok := groups[key]; !ok {
				order = append(order, key)
			}
			groups[key] = append(groups[key], row)
		}
		perGroup := size / len(order)
		if perGroup < 1 {
			perGroup = 1
		}
		var out []map[string]interface{}
		for _, k := range order {
			g := groups[k]
			n := perGroup
			if n > len(g) {
				n = len(g)
			}
			out = append(out, deterministicSample(g, n)...)
		}
		return out
	}
	return deterministicSample(rows, size)
}

// deterministicSample picks an evenly-spaced subset, matching the
// original's seed=42 reproducibility intent without depending on a
// particular PRNG stream.
func deterministicSample(rows []map[string]interface{}, n int) []map[string]interface{} {
	if n >= len(rows) {
		return rows
	}
	if n <= 0 {
		return nil
	}
	out := make([]map[string]interface{}, 0, n)
	step := float64(len(rows)) / float64(n)
	for i := 0; i < n; i++ {
		out = append(out, rows[int(float64(i)*step)])
	}
	return out
}

func statisticsRows(rows []map[string]interface{}, params map[string]interface{}) []map[string]interface{} {
	cols := columnNames(rows)
	if requested := params["columns"]; requested != nil {
		if s, ok := requested.(string); !ok || s != "all" {
			cols = toStringSlice(requested)
		}
	}
	out := make([]map[string]interface{}, 0, len(cols))
	for _, c := range cols {
		values := numericColumn(rows, c)
		if len(values) == 0 {
			continue
		}
		sorted := append([]float64(nil), values...)
		sort.Float64s(sorted)
		out = append(out, map[string]interface{}{
			"column": c,
			"count":  len(values),
			"mean":   mean(values),
			"std":    stddev(values),
			"min":    minOf(values),
			"25%":    quantile(sorted, 0.25),
			"50%":    quantile(sorted, 0.5),
			"75%":    quantile(sorted, 0.75),
			"max":    maxOf(values),
		})
	}
	return out
}

func joinRows(rows []map[string]interface{}, params map[string]interface{}) []map[string]interface{} {
	joinDataRaw, _ := params["join_data"].([]interface{})
	if len(joinDataRaw) == 0 {
		return rows
	}
	joinRows, _ := toRows(joinDataRaw)
	joinOn := toStringSlice(params["join_on"])
	joinType, _ := params["join_type"].(string)
	if joinType == "" {
		joinType = "inner"
	}

	if len(joinOn) == 0 {
		return append(append([]map[string]interface{}{}, rows...), joinRows...)
	}

	index := map[string][]map[string]interface{}{}
	for _, r := range joinRows {
		k := groupKey(r, joinOn)
		index[k] = append(index[k], r)
	}

	var out []map[string]interface{}
	matchedRight := map[string]bool{}
	for _, left := range rows {
		k := groupKey(left, joinOn)
		matches := index[k]
		if len(matches) == 0 {
			if joinType == "left" || joinType == "outer" {
				out = append(out, left)
			}
			continue
		}
		matchedRight[k] = true
		for _, right := range matches {
			out = append(out, mergeRow(left, right))
		}
	}
	if joinType == "right" || joinType == "outer" {
		for k, matches := range index {
			if matchedRight[k] {
				continue
			}
			out = append(out, matches...)
		}
	}
	return out
}

func mergeRow(a, b map[string]interface{}) map[string]interface{} {
	rec := make(map[string]interface{}, len(a)+len(b))
	for k, v := range a {
		rec[k] = v
	}
	for k, v := range b {
		rec[k] = v
	}
	return rec
}

func pivotRows(rows []map[string]interface{}, params map[string]interface{}) []map[string]interface{} {
	index := toStringSlice(params["index"])
	columns := toStringSlice(params["columns"])
	values := toStringSlice(params["values"])
	aggfunc, _ := params["aggfunc"].(string)
	if aggfunc == "" {
		aggfunc = "mean"
	}
	if len(index) == 0 || len(columns) == 0 || len(values) == 0 {
		return rows
	}

	buckets := map[string][]float64{}
	var order []string
	for _, row := range rows {
		ik := groupKey(row, index)
		ck := groupKey(row, columns)
		for _, v := range values {
			f, ok := toFloat(row[v])
			if !ok {
				continue
			}
			key := ik + "\x01" + ck + "\x01" + v
			if _, exists := buckets[key]; !exists {
				order = append(order, key)
			}
			buckets[key] = append(buckets[key], f)
		}
	}

	rowsByIndex := map[string]map[string]interface{}{}
	var indexOrder []string
	for _, key := range order {
		parts := strings.SplitN(key, "\x01", 3)
		ik, ck, v := parts[0], parts[1], parts[2]
		rec, ok := rowsByIndex[ik]
		if !ok {
			rec = map[string]interface{}{}
			for i, col := range index {
				rec[col] = strings.Split(ik, "\x00")[i]
			}
			rowsByIndex[ik] = rec
			indexOrder = append(indexOrder, ik)
		}
		vals := buckets[key]
		var result float64
		switch aggfunc {
		case "sum":
			result = sum(vals)
		case "count":
			result = float64(len(vals))
		case "min":
			result = minOf(vals)
		case "max":
			result = maxOf(vals)
		default:
			result = mean(vals)
		}
		rec[ck+"_"+v] = result
	}

	out := make([]map[string]interface{}, 0, len(indexOrder))
	for _, ik := range indexOrder {
		out = append(out, rowsByIndex[ik])
	}
	return out
}

func formatOutput(rows []map[string]interface{}, format string) interface{} {
	switch format {
	case "list":
		cols := columnNames(rows)
		out := make([][]interface{}, len(rows))
		for i, row := range rows {
			vals := make([]interface{}, len(cols))
			for j, c := range cols {
				vals[j] = row[c]
			}
			out[i] = vals
		}
		return out
	case "dict":
		cols := columnNames(rows)
		out := make(map[string][]interface{}, len(cols))
		for _, c := range cols {
			vals := make([]interface{}, len(rows))
			for i, row := range rows {
				vals[i] = row[c]
			}
			out[c] = vals
		}
		return out
	case "json":
		b, _ := json.Marshal(rows)
		return string(b)
	case "csv":
		return rowsToCSV(rows)
	default:
		return rows
	}
}

func rowsToCSV(rows []map[string]interface{}) string {
	cols := columnNames(rows)
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(cols)
	for _, row := range rows {
		rec := make([]string, len(cols))
		for i, c := range cols {
			rec[i] = fmt.Sprint(row[c])
		}
		_ = w.Write(rec)
	}
	w.Flush()
	return buf.String()
}
