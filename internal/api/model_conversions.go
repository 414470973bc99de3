package api

import (
	"oracle-broker/internal/database"
	"oracle-broker/pkg/api"
	"time"
)

func toApiRequest(record database.PromptRequest) api.Request {
	var resolved *time.Time
	if record.ResolutionTime.Valid {
		t := record.ResolutionTime.Time
		resolved = &t
	}

	return api.Request{
		Id:             record.Id,
		Sender:         record.Sender,
		ModelId:        record.ModelId,
		Input:          record.Input,
		Output:         record.Output,
		GasLimit:       record.GasLimit,
		Status:         record.Status,
		CreationTime:   record.CreationTime,
		ResolutionTime: resolved,
	}
}
