package output

import (
	"fmt"
	"io"
	"reflect"
	"strings"
	"text/tabwriter"
	"time"
)

// Pair is one key and value row.
type Pair struct {
	Key   string
	Value string
}

// ParsePairs splits "k1=v1 k2=v2" into pairs. Words without '=' get an
// empty value.
func ParsePairs(s string) []Pair {
	var pairs []Pair
	for _, field := range strings.Fields(s) {
		k, v, _ := strings.Cut(field, "=")
		pairs = append(pairs, Pair{Key: k, Value: v})
	}
	return pairs
}

// Table is a rendered-as-is table.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Render writes the table with aligned columns.
func (t *Table) Render(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if len(t.Headers) > 0 {
		fmt.Fprintln(tw, strings.Join(t.Headers, "\t"))
	}
	for _, row := range t.Rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// TableFormatter formats data as a table.
type TableFormatter struct{}

// Format formats a *Table, []Pair or struct.
func (f *TableFormatter) Format(w io.Writer, data any) error {
	switch v := data.(type) {
	case nil:
		return nil
	case *Table:
		return v.Render(w)
	case []Pair:
		t := &Table{Headers: []string{"KEY", "VALUE"}}
		for _, p := range v {
			t.Rows = append(t.Rows, []string{p.Key, p.Value})
		}
		return t.Render(w)
	}

	t, err := structToTable(reflect.ValueOf(data))
	if err != nil {
		return err
	}
	return t.Render(w)
}

// structToTable lists the exported fields of a struct, named by their yaml
// tag when present.
func structToTable(v reflect.Value) (*Table, error) {
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil, fmt.Errorf("output: cannot render %s as a table", v.Kind())
	}

	t := &Table{Headers: []string{"FIELD", "VALUE"}}
	typ := v.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if !field.IsExported() {
			continue
		}
		name := field.Name
		if tag, _, _ := strings.Cut(field.Tag.Get("yaml"), ","); tag == "-" {
			continue
		} else if tag != "" {
			name = tag
		}
		t.Rows = append(t.Rows, []string{name, formatValue(v.Field(i))})
	}
	return t, nil
}

func formatValue(v reflect.Value) string {
	if d, ok := v.Interface().(time.Duration); ok {
		return d.String()
	}
	switch v.Kind() {
	case reflect.String:
		if v.String() == "" {
			return "-"
		}
		return v.String()
	case reflect.Bool:
		if v.Bool() {
			return "yes"
		}
		return "no"
	default:
		return fmt.Sprint(v.Interface())
	}
}
