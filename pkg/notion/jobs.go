package notion

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// Property names of the job tracking database.
const (
	PropJobID     = "Job ID"
	PropStatus    = "Status"
	PropCollected = "Collected"
	PropStored    = "Stored"
	PropError     = "Error"
)

// maxRichText is Notion's limit for a single rich text content block.
const maxRichText = 2000

// JobUpdate describes a change to a job page. Nil counters and an empty
// status are left untouched.
type JobUpdate struct {
	Status    string
	Collected *int
	Stored    *int
	Error     string
}

// CreateJobPage adds a row for jobID to the tracking database and returns
// the new page id.
func CreateJobPage(ctx context.Context, c Client, dbID, jobID, status string) (string, error) {
	props := notionapi.Properties{
		PropJobID: notionapi.TitleProperty{
			Type: notionapi.PropertyTypeTitle,
			Title: []notionapi.RichText{
				{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: jobID}},
			},
		},
		PropStatus: notionapi.StatusProperty{
			Status: notionapi.Status{Name: status},
		},
	}

	page, err := c.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(dbID),
		},
		Properties: props,
	})
	if err != nil {
		return "", eris.Wrap(err, fmt.Sprintf("notion: create job page %s", jobID))
	}
	return page.ID.String(), nil
}

// UpdateJobPage applies u to an existing job page.
func UpdateJobPage(ctx context.Context, c Client, pageID string, u JobUpdate) error {
	props := jobProperties(u)
	if len(props) == 0 {
		return nil
	}
	if _, err := c.UpdatePage(ctx, pageID, &notionapi.PageUpdateRequest{Properties: props}); err != nil {
		return eris.Wrap(err, fmt.Sprintf("notion: update job page %s", pageID))
	}
	return nil
}

// FindJobPage returns the page id of the row titled jobID, or "" when the
// database has no such row. Only the first match is considered.
func FindJobPage(ctx context.Context, c Client, dbID, jobID string) (string, error) {
	resp, err := c.QueryDatabase(ctx, dbID, &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: PropJobID,
			RichText: &notionapi.TextFilterCondition{Equals: jobID},
		},
		PageSize: 1,
	})
	if err != nil {
		return "", eris.Wrap(err, fmt.Sprintf("notion: find job page %s", jobID))
	}
	if resp == nil || len(resp.Results) == 0 {
		return "", nil
	}
	return resp.Results[0].ID.String(), nil
}

func jobProperties(u JobUpdate) notionapi.Properties {
	props := make(notionapi.Properties)
	if u.Status != "" {
		props[PropStatus] = notionapi.StatusProperty{
			Status: notionapi.Status{Name: u.Status},
		}
	}
	if u.Collected != nil {
		props[PropCollected] = notionapi.NumberProperty{
			Type:   notionapi.PropertyTypeNumber,
			Number: float64(*u.Collected),
		}
	}
	if u.Stored != nil {
		props[PropStored] = notionapi.NumberProperty{
			Type:   notionapi.PropertyTypeNumber,
			Number: float64(*u.Stored),
		}
	}
	if u.Error != "" {
		msg := []rune(u.Error)
		if len(msg) > maxRichText {
			msg = msg[:maxRichText]
		}
		props[PropError] = notionapi.RichTextProperty{
			Type: notionapi.PropertyTypeRichText,
			RichText: []notionapi.RichText{
				{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: string(msg)}},
			},
		}
	}
	return props
}
