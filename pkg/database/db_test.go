package database

import "testing"

func TestBuildDialectorSupportedDrivers(t *testing.T) {
	drivers := []string{"sqlite", "postgres", "mysql", "sqlserver"}
	for _, driver := range drivers {
		dialector, err := buildDialector(driver, "dsn-doesnt-matter-here")
		if err != nil {
			t.Errorf("driver %q: unexpected error: %v", driver, err)
			continue
		}
		if dialector == nil {
			t.Errorf("driver %q: expected a non-nil dialector", driver)
		}
	}
}

func TestBuildDialectorUnsupportedDriver(t *testing.T) {
	_, err := buildDialector("oracle", "whatever")
	if err == nil {
		t.Fatal("expected an error for an unsupported driver")
	}
}
