package gateway

import (
	"encoding/json"
	"fmt"
	"strings"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const (
	// maxTableColumns bounds how many columns of a server side Table are
	// shown to the model.
	maxTableColumns = 3
	// maxTableRows bounds how many rows of a list are shown to the model.
	maxTableRows = 30
)

func decodeTable(data []byte) (*metav1.Table, error) {
	var table metav1.Table
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("decoding Table: %w", err)
	}
	return &table, nil
}

// formatTable renders a server side Table as a compact markdown table. The
// first column links to the resource's detail view in the dashboard.
func formatTable(table *metav1.Table, cluster, resourceKind string) string {
	headers := make([]string, 0, maxTableColumns)
	for _, col := range table.ColumnDefinitions {
		if len(headers) == maxTableColumns {
			break
		}
		headers = append(headers, col.Name)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d items:\n", len(table.Rows))

	b.WriteString("| " + strings.Join(headers, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat("---|", len(headers)) + "\n")

	shown := table.Rows
	if len(shown) > maxTableRows {
		shown = shown[:maxTableRows]
	}

	for i := range shown {
		row := &shown[i]
		namespace := rowNamespace(row)

		cells := make([]string, len(headers))
		for j := range headers {
			value := "-"
			if j < len(row.Cells) && row.Cells[j] != nil {
				value = fmt.Sprintf("%v", row.Cells[j])
			}
			if j == 0 && resourceKind != "" && value != "-" {
				value = resourceLink(value, cluster, resourceKind, namespace)
			}
			cells[j] = value
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}

	if len(table.Rows) > maxTableRows {
		fmt.Fprintf(&b,
			"\n*Showing %d of %d items. For the complete list, go to the [%s list view](/c/%s/%s).*",
			maxTableRows, len(table.Rows), resourceKind, cluster, resourceKind)
	}

	return strings.TrimRight(b.String(), "\n")
}

func resourceLink(name, cluster, resourceKind, namespace string) string {
	if namespace == "" {
		return fmt.Sprintf("[%s](/c/%s/%s/%s)", name, cluster, resourceKind, name)
	}
	return fmt.Sprintf("[%s](/c/%s/%s/%s/%s)", name, cluster, resourceKind, namespace, name)
}

// rowNamespace pulls the namespace out of the row's partial object
// metadata, which the API server includes when asked for Tables.
func rowNamespace(row *metav1.TableRow) string {
	if len(row.Object.Raw) == 0 {
		return ""
	}

	var partial metav1.PartialObjectMetadata
	if err := json.Unmarshal(row.Object.Raw, &partial); err != nil {
		return ""
	}
	return partial.Namespace
}
