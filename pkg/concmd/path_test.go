package concmd

import (
	"reflect"
	"testing"

	"github.com/pkg/errors"
)

type account struct {
	Name  string
	Roles []string
	inner int
}

// TestLookup tests property paths over Go values
func TestLookup(t *testing.T) {
	data := map[string]interface{}{
		"user": &account{Name: "ada", Roles: []string{"admin", "dev"}},
		"list": []interface{}{1, "two"},
		"nil":  nil,
	}

	tests := []struct {
		path string
		want interface{}
		err  error
	}{
		{".user.Name", "ada", nil},
		{".user.name", "ada", nil},
		{".user.roles[1]", "dev", nil},
		{".user.roles.length", 2, nil},
		{"['list'][1]", "two", nil},
		{`["list"].length`, 2, nil},
		{".nil", nil, nil},
		{".missing", nil, ErrNoProperty},
		{".nil.x", nil, ErrNoProperty},
		{".user.inner", nil, ErrNoProperty},
		{".list[5]", nil, ErrNoProperty},
		{".", nil, ErrBadPath},
		{"[unterminated", nil, ErrBadPath},
		{"-x", nil, ErrBadPath},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := Lookup(data, tt.path)
			if errors.Cause(err) != tt.err {
				t.Fatalf("Expected error %v, got %v", tt.err, err)
			}
			if err == nil && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Expected %#v, got %#v", tt.want, got)
			}
		})
	}
}

// TestKeys tests key listing for each supported kind
func TestKeys(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want interface{}
	}{
		{"map", map[string]int{"z": 1, "a": 2}, []string{"a", "z"}},
		{"struct", account{}, []string{"Name", "Roles"}},
		{"pointer", &account{}, []string{"Name", "Roles"}},
		{"slice", []string{"x", "y"}, []int{0, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Keys(tt.in)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}

	if _, err := Keys(42); errors.Cause(err) != ErrNoKeys {
		t.Errorf("Expected ErrNoKeys, got %v", err)
	}
	if _, err := Keys(nil); errors.Cause(err) != ErrNoKeys {
		t.Errorf("Expected ErrNoKeys for nil, got %v", err)
	}
}
