package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"notification-engine/internal/models"
)

// batchableTypes may be aggregated under a batch key; everything else goes
// out as a single notification even on the low-priority path.
var batchableTypes = map[string]bool{
	models.TypeDiscussionLike:  true,
	models.TypeChartLike:       true,
	models.TypeCommentLike:     true,
	models.TypeDiscussionReply: true,
}

func isBatchable(typ string) bool {
	return batchableTypes[typ]
}

type content struct {
	title   string
	message string
	icon    string
}

// batchedContent renders the aggregated title/message, branching on the
// number of distinct actors.
func batchedContent(typ string, actors []string, count int, contextTitle string) content {
	short := truncate(contextTitle, 40)

	switch typ {
	case models.TypeDiscussionLike:
		return likeContent(actors, "liked your discussion", short, "👍")
	case models.TypeChartLike:
		return likeContent(actors, "liked your chart", short, "⭐")
	case models.TypeCommentLike:
		return likeContent(actors, "liked your comment", short, "👍")
	case models.TypeDiscussionReply:
		if len(actors) == 1 {
			return content{
				title:   fmt.Sprintf("%d new replies from %s", count, actors[0]),
				message: fmt.Sprintf("in %q", short),
				icon:    "💬",
			}
		}
		return content{
			title:   fmt.Sprintf("%d new replies", count),
			message: fmt.Sprintf("from %d people in %q", len(actors), short),
			icon:    "💬",
		}
	default:
		return content{
			title:   fmt.Sprintf("%d new activities", count),
			message: fmt.Sprintf("from %d people", len(actors)),
			icon:    "📧",
		}
	}
}

func likeContent(actors []string, verb, short, icon string) content {
	var title string
	switch len(actors) {
	case 1:
		title = fmt.Sprintf("%s %s", actors[0], verb)
	case 2:
		title = fmt.Sprintf("%s and %s %s", actors[0], actors[1], verb)
	default:
		title = fmt.Sprintf("%s, %s and %d others %s", actors[0], actors[1], len(actors)-2, verb)
	}
	return content{title: title, message: fmt.Sprintf("%q", short), icon: icon}
}

// immediateContent renders a single-event notification.
func immediateContent(e models.Event) content {
	short := truncate(e.ContextTitle, 50)

	switch e.Type {
	case models.TypeDiscussionMention:
		return content{
			title:   "You were mentioned",
			message: fmt.Sprintf("%s mentioned you in %q", e.ActorName, short),
			icon:    "@",
		}
	case models.TypeDiscussionReply:
		return content{
			title:   "New reply to your discussion",
			message: fmt.Sprintf("%s replied to %q", e.ActorName, short),
			icon:    "💬",
		}
	case models.TypeFollow:
		return content{
			title:   "New follower",
			message: fmt.Sprintf("%s started following you", e.ActorName),
			icon:    "➕",
		}
	case models.TypeSystemAnnounce:
		return content{
			title:   "System Announcement",
			message: e.ContextTitle,
			icon:    "📢",
		}
	default:
		if e.ActorName == "" {
			return content{title: "New notification", message: short, icon: "📧"}
		}
		return content{
			title:   "New notification",
			message: fmt.Sprintf("%s: %s", e.ActorName, short),
			icon:    "📧",
		}
	}
}

// entityURL maps an entity reference to its page.
func entityURL(entityType, entityID string) string {
	switch entityType {
	case models.EntityDiscussion:
		return "/discussions/" + entityID
	case models.EntityReply:
		return "/discussions/" + entityID
	case models.EntityChart:
		return "/chart/" + entityID
	case models.EntityUser:
		return "/profile/" + entityID
	default:
		return "/notifications"
	}
}

// batchedPriority escalates with how much activity the batch absorbed.
func batchedPriority(count int) models.Priority {
	switch {
	case count >= 10:
		return models.PriorityHigh
	case count >= 5:
		return models.PriorityMedium
	default:
		return models.PriorityLow
	}
}

// ImmediateNotification builds the persisted record for a single event
// without batching (urgent path and non-batchable types).
func ImmediateNotification(e models.Event) models.Notification {
	c := immediateContent(e)
	priority := e.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	var data map[string]interface{}
	if len(e.Data) > 0 || e.ContextTitle != "" {
		data = map[string]interface{}{}
		for k, v := range e.Data {
			data[k] = v
		}
		if e.ContextTitle != "" {
			data["contextTitle"] = e.ContextTitle
		}
	}
	return models.Notification{
		ID:         uuid.New().String(),
		UserID:     e.UserID,
		Type:       e.Type,
		Title:      c.title,
		Message:    c.message,
		Icon:       c.icon,
		Priority:   priority,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		EntityURL:  entityURL(e.EntityType, e.EntityID),
		Data:       data,
		CreatedAt:  time.Now(),
	}
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
