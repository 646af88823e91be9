package record

import "fmt"

func errMissingField(table, column string) error {
	return fmt.Errorf("record: table %q: missing field for column %q", table, column)
}
