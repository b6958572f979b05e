package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// StringArray is a text[] column on postgres and a JSON-encoded text column elsewhere.
type StringArray []string

func (StringArray) GormDataType() string {
	return "text[]"
}

func (StringArray) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "text[]"
	}
	return "text"
}

func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		a = StringArray{}
	}
	return pq.StringArray(a).Value()
}

func (a *StringArray) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*a = StringArray{}
		return nil
	case []byte:
		return a.scanText(string(v))
	case string:
		return a.scanText(v)
	default:
		return fmt.Errorf("db: cannot scan %T into StringArray", src)
	}
}

func (a *StringArray) scanText(raw string) error {
	if len(raw) > 0 && raw[0] == '[' {
		var out []string
		if err := json.Unmarshal([]byte(raw), &out); err != nil {
			return err
		}
		*a = out
		return nil
	}
	var out pq.StringArray
	if err := out.Scan(raw); err != nil {
		return err
	}
	*a = StringArray(out)
	return nil
}
