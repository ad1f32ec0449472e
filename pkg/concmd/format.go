/*
Copyright 2018-2024 Craig Johnston <cjimti@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package concmd

import (
	"strconv"

	"github.com/txn2/debugcon/pkg/conlog"
)

// Format returns the result writer used by console sessions. Errors print
// their message, Text prints as is, strings are quoted and everything else
// uses the log rendering rule.
func Format(colors bool) func(result interface{}, err error) string {
	return func(result interface{}, err error) string {
		if err != nil {
			return err.Error()
		}
		switch v := result.(type) {
		case nil:
			return ""
		case Text:
			return string(v)
		case string:
			return strconv.Quote(v)
		}
		return conlog.Render(result, colors)
	}
}
