package sync

import (
	"collabhub/platform/internal/client"
	"collabhub/platform/internal/models"
)

// Stores bundles one collection per entity table, all sharing the same
// transport client.
type Stores struct {
	Projects       *Collection[models.Project]
	Tasks          *Collection[models.Task]
	Notes          *Collection[models.Note]
	Messages       *Collection[models.Message]
	Files          *Collection[models.ProjectFile]
	Portfolio      *Collection[models.PortfolioItem]
	MentorRequests *Collection[models.MentorRequest]
	Reports        *Collection[models.Report]
}

func NewStores(cli *client.Client) *Stores {
	return &Stores{
		Projects:       NewCollection[models.Project](cli, models.TableProjects),
		Tasks:          NewCollection[models.Task](cli, models.TableTasks),
		Notes:          NewCollection[models.Note](cli, models.TableNotes),
		Messages:       NewCollection[models.Message](cli, models.TableMessages),
		Files:          NewCollection[models.ProjectFile](cli, models.TableFiles),
		Portfolio:      NewCollection[models.PortfolioItem](cli, models.TablePortfolioItems),
		MentorRequests: NewCollection[models.MentorRequest](cli, models.TableMentorRequests),
		Reports:        NewCollection[models.Report](cli, models.TableReports),
	}
}

// ApplyEvent routes a realtime change to the collection for its table.
func (s *Stores) ApplyEvent(ev models.ChangeEvent) error {
	switch ev.Table {
	case models.TableProjects:
		return s.Projects.ApplyEvent(ev)
	case models.TableTasks:
		return s.Tasks.ApplyEvent(ev)
	case models.TableNotes:
		return s.Notes.ApplyEvent(ev)
	case models.TableMessages:
		return s.Messages.ApplyEvent(ev)
	case models.TableFiles:
		return s.Files.ApplyEvent(ev)
	case models.TablePortfolioItems:
		return s.Portfolio.ApplyEvent(ev)
	case models.TableMentorRequests:
		return s.MentorRequests.ApplyEvent(ev)
	case models.TableReports:
		return s.Reports.ApplyEvent(ev)
	}
	return nil
}
