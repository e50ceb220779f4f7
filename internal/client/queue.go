package client

import (
	"context"

	"critical-alerts/internal/models"
)

// MaxQueuePages 单个环节最多翻页数
const MaxQueuePages = 50

// FetchActiveQueue 逐页读取某环节的活动队列，直到返回不满一页
// 后端忽略分页参数（重复返回同一页）时提前结束
func FetchActiveQueue(ctx context.Context, api API, servicePoint models.ServicePoint, pageSize int) ([]models.QueueEntry, error) {
	if pageSize <= 0 {
		pageSize = 100
	}

	var all []models.QueueEntry
	seen := make(map[string]struct{})
	for page := 1; page <= MaxQueuePages; page++ {
		entries, err := api.GetQueue(ctx, servicePoint, true, page, pageSize)
		if err != nil {
			return nil, err
		}

		added := 0
		for _, e := range entries {
			key := e.ID + "|" + e.PatientID
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			all = append(all, e)
			added++
		}

		if len(entries) < pageSize || added == 0 {
			break
		}
	}
	return all, nil
}
