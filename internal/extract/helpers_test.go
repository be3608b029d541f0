package extract

import "github.com/joseph-ayodele/faxintake/internal/entity"

type mappedFields struct {
	entity.ExtractedFields
	mapped  int
	dropped []string
}
