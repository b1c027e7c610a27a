package rbac

import (
	"errors"

	"github.com/carepoint-hms/carepoint/internal/docstore"
)

func isNotFound(err error) bool {
	return errors.Is(err, docstore.ErrNotFound)
}
