package pipeline

import (
    "fmt"
    "reflect"
    "regexp"
    "strings"
)

// evalExpr evaluates an aggregation expression against one document.
// Supported: "$field" paths, {$op: [...]} arithmetic, {$literal: v},
// operator-free objects (evaluated per key, used for composite group ids)
// and plain literals.
func evalExpr(doc Document, expr any) (any, error) {
    switch e := expr.(type) {
    case string:
        if strings.HasPrefix(e, "$") {
            return fieldPath(doc, e[1:]), nil
        }
        return e, nil
    case map[string]any:
        if op, arg, ok := singleOperator(e); ok {
            return evalOperator(doc, op, arg)
        }
        out := make(Document, len(e))
        for k, v := range e {
            ev, err := evalExpr(doc, v)
            if err != nil {
                return nil, err
            }
            out[k] = ev
        }
        return out, nil
    default:
        return expr, nil
    }
}

func singleOperator(m map[string]any) (string, any, bool) {
    if len(m) != 1 {
        return "", nil, false
    }
    for k, v := range m {
        if strings.HasPrefix(k, "$") {
            return k, v, true
        }
    }
    return "", nil, false
}

func evalOperator(doc Document, op string, arg any) (any, error) {
    switch op {
    case "$literal":
        return arg, nil
    case "$add", "$subtract", "$multiply", "$divide":
        return evalArithmetic(doc, op, arg)
    case "$concat":
        args, ok := arg.([]any)
        if !ok {
            return nil, fmt.Errorf("%s expects an array", op)
        }
        var sb strings.Builder
        for _, a := range args {
            v, err := evalExpr(doc, a)
            if err != nil {
                return nil, err
            }
            if v == nil {
                return nil, nil
            }
            s, ok := v.(string)
            if !ok {
                return nil, fmt.Errorf("$concat expects strings, got %T", v)
            }
            sb.WriteString(s)
        }
        return sb.String(), nil
    case "$toUpper":
        v, err := evalExpr(doc, arg)
        if err != nil {
            return nil, err
        }
        if s, ok := v.(string); ok {
            return strings.ToUpper(s), nil
        }
        return "", nil
    case "$toLower":
        v, err := evalExpr(doc, arg)
        if err != nil {
            return nil, err
        }
        if s, ok := v.(string); ok {
            return strings.ToLower(s), nil
        }
        return "", nil
    case "$ifNull":
        args, ok := arg.([]any)
        if !ok || len(args) != 2 {
            return nil, fmt.Errorf("$ifNull expects [expr, replacement]")
        }
        v, err := evalExpr(doc, args[0])
        if err != nil {
            return nil, err
        }
        if v != nil {
            return v, nil
        }
        return evalExpr(doc, args[1])
    default:
        return nil, fmt.Errorf("unsupported expression operator %s", op)
    }
}

func evalArithmetic(doc Document, op string, arg any) (any, error) {
    args, ok := arg.([]any)
    if !ok || len(args) == 0 {
        return nil, fmt.Errorf("%s expects a non-empty array", op)
    }
    nums := make([]float64, len(args))
    for i, a := range args {
        v, err := evalExpr(doc, a)
        if err != nil {
            return nil, err
        }
        n, ok := asNumber(v)
        if !ok {
            // nulls and non-numbers poison arithmetic rather than erroring,
            // matching how missing CSV cells behave
            return nil, nil
        }
        nums[i] = n
    }
    switch op {
    case "$add":
        total := 0.0
        for _, n := range nums {
            total += n
        }
        return total, nil
    case "$subtract":
        total := nums[0]
        for _, n := range nums[1:] {
            total -= n
        }
        return total, nil
    case "$multiply":
        total := 1.0
        for _, n := range nums {
            total *= n
        }
        return total, nil
    default: // $divide
        if len(nums) != 2 {
            return nil, fmt.Errorf("$divide expects exactly two operands")
        }
        if nums[1] == 0 {
            return nil, nil
        }
        return nums[0] / nums[1], nil
    }
}

// fieldPath resolves a dotted path. Sanitized column names never contain
// dots, so in practice this is a single map lookup.
func fieldPath(doc Document, path string) any {
    if !strings.Contains(path, ".") {
        return doc[path]
    }
    var cur any = doc
    for _, part := range strings.Split(path, ".") {
        m, ok := cur.(map[string]any)
        if !ok {
            return nil
        }
        cur = m[part]
    }
    return cur
}

func asNumber(v any) (float64, bool) {
    switch n := v.(type) {
    case float64:
        return n, true
    case int64:
        return float64(n), true
    case int:
        return float64(n), true
    default:
        return 0, false
    }
}

// compare orders two values for $sort, $min and $max. Types rank
// nil < numbers < strings < bools; like types compare naturally.
func compare(a, b any) int {
    ra, rb := typeRank(a), typeRank(b)
    if ra != rb {
        if ra < rb {
            return -1
        }
        return 1
    }
    switch ra {
    case 1:
        na, _ := asNumber(a)
        nb, _ := asNumber(b)
        switch {
        case na < nb:
            return -1
        case na > nb:
            return 1
        }
    case 2:
        return strings.Compare(a.(string), b.(string))
    case 3:
        ba, bb := a.(bool), b.(bool)
        if !ba && bb {
            return -1
        }
        if ba && !bb {
            return 1
        }
    }
    return 0
}

func typeRank(v any) int {
    switch v.(type) {
    case nil:
        return 0
    case float64, int64, int:
        return 1
    case string:
        return 2
    case bool:
        return 3
    default:
        return 4
    }
}

// valuesEqual is query equality: numbers compare numerically across types,
// everything else by deep equality.
func valuesEqual(a, b any) bool {
    if na, ok := asNumber(a); ok {
        if nb, ok := asNumber(b); ok {
            return na == nb
        }
        return false
    }
    return reflect.DeepEqual(a, b)
}

// -------------------- match queries --------------------

// matchDoc evaluates a $match query against a document.
func matchDoc(doc Document, query map[string]any) (bool, error) {
    for key, cond := range query {
        switch key {
        case "$and":
            subs, ok := cond.([]any)
            if !ok {
                return false, fmt.Errorf("$and expects an array")
            }
            for _, sub := range subs {
                q, ok := sub.(map[string]any)
                if !ok {
                    return false, fmt.Errorf("$and expects objects")
                }
                m, err := matchDoc(doc, q)
                if err != nil || !m {
                    return false, err
                }
            }
        case "$or":
            subs, ok := cond.([]any)
            if !ok {
                return false, fmt.Errorf("$or expects an array")
            }
            matched := false
            for _, sub := range subs {
                q, ok := sub.(map[string]any)
                if !ok {
                    return false, fmt.Errorf("$or expects objects")
                }
                m, err := matchDoc(doc, q)
                if err != nil {
                    return false, err
                }
                if m {
                    matched = true
                    break
                }
            }
            if !matched {
                return false, nil
            }
        case "$nor":
            subs, ok := cond.([]any)
            if !ok {
                return false, fmt.Errorf("$nor expects an array")
            }
            for _, sub := range subs {
                q, ok := sub.(map[string]any)
                if !ok {
                    return false, fmt.Errorf("$nor expects objects")
                }
                m, err := matchDoc(doc, q)
                if err != nil {
                    return false, err
                }
                if m {
                    return false, nil
                }
            }
        default:
            if strings.HasPrefix(key, "$") {
                return false, fmt.Errorf("unsupported query operator %s", key)
            }
            ok, err := matchField(fieldPath(doc, key), cond)
            if err != nil || !ok {
                return false, err
            }
        }
    }
    return true, nil
}

func matchField(value any, cond any) (bool, error) {
    ops, isOps := operatorObject(cond)
    if !isOps {
        return valuesEqual(value, cond), nil
    }
    for op, arg := range ops {
        ok, err := matchOperator(value, op, arg, ops)
        if err != nil || !ok {
            return false, err
        }
    }
    return true, nil
}

// operatorObject reports whether cond is a {"$op": ...} condition object
// rather than a literal to compare against.
func operatorObject(cond any) (map[string]any, bool) {
    m, ok := cond.(map[string]any)
    if !ok || len(m) == 0 {
        return nil, false
    }
    for k := range m {
        if !strings.HasPrefix(k, "$") {
            return nil, false
        }
    }
    return m, true
}

func matchOperator(value any, op string, arg any, all map[string]any) (bool, error) {
    switch op {
    case "$eq":
        return valuesEqual(value, arg), nil
    case "$ne":
        return !valuesEqual(value, arg), nil
    case "$gt", "$gte", "$lt", "$lte":
        // nil never satisfies an inequality
        if value == nil || arg == nil {
            return false, nil
        }
        if typeRank(value) != typeRank(arg) {
            return false, nil
        }
        c := compare(value, arg)
        switch op {
        case "$gt":
            return c > 0, nil
        case "$gte":
            return c >= 0, nil
        case "$lt":
            return c < 0, nil
        default:
            return c <= 0, nil
        }
    case "$in":
        list, ok := arg.([]any)
        if !ok {
            return false, fmt.Errorf("$in expects an array")
        }
        for _, item := range list {
            if valuesEqual(value, item) {
                return true, nil
            }
        }
        return false, nil
    case "$nin":
        list, ok := arg.([]any)
        if !ok {
            return false, fmt.Errorf("$nin expects an array")
        }
        for _, item := range list {
            if valuesEqual(value, item) {
                return false, nil
            }
        }
        return true, nil
    case "$exists":
        want, _ := arg.(bool)
        return (value != nil) == want, nil
    case "$regex":
        pattern, ok := arg.(string)
        if !ok {
            return false, fmt.Errorf("$regex expects a string pattern")
        }
        if opts, ok := all["$options"].(string); ok && strings.Contains(opts, "i") {
            pattern = "(?i)" + pattern
        }
        re, err := regexp.Compile(pattern)
        if err != nil {
            return false, fmt.Errorf("invalid $regex pattern: %w", err)
        }
        s, ok := value.(string)
        if !ok {
            return false, nil
        }
        return re.MatchString(s), nil
    case "$options":
        // consumed by $regex
        return true, nil
    case "$not":
        sub, err := matchField(value, arg)
        if err != nil {
            return false, err
        }
        return !sub, nil
    default:
        return false, fmt.Errorf("unsupported query operator %s", op)
    }
}
