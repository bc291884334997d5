package postgres

import "database/sql/driver"

// ArgConverter lets int64 and string slices reach the driver unchanged, the way the pgx
// stdlib driver accepts them for = ANY($n) parameters. Tests pass it to
// sqlmock.ValueConverterOption.
type ArgConverter struct{}

func (ArgConverter) ConvertValue(v any) (driver.Value, error) {
	switch v.(type) {
	case []int64, []string:
		return v, nil
	}
	return driver.DefaultParameterConverter.ConvertValue(v)
}
