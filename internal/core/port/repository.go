package port

import (
	"github.com/Wyydra/yajanus/internal/core/domain"
)

type HandleRepository interface {
	Save(h domain.Handle) error
	Get(id domain.HandleID) (domain.Handle, bool)
	Delete(id domain.HandleID)
	List() []domain.Handle
	Clear()
}
