package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("CAREPOINT_TEST_MODE") == "" {
			_ = os.Setenv("CAREPOINT_TEST_MODE", "1")
		}
	})
}
