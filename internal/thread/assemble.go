package thread

import (
	"fmt"
	"sort"

	"questlog/internal/apperr"
)

type AnomalyKind string

const (
	// AnomalyOrphanReply: the reply's review is not among the rows. The reply is dropped.
	AnomalyOrphanReply AnomalyKind = "orphan_reply"
	// AnomalyDanglingParent: the parent reply id does not resolve. The reply moves under its review.
	AnomalyDanglingParent AnomalyKind = "dangling_parent"
	// AnomalyCrossReviewParent: the parent reply belongs to another review. The reply moves under its review.
	AnomalyCrossReviewParent AnomalyKind = "cross_review_parent"
	// AnomalyParentCycle: parent links loop. The link of the reply closing the loop is cut.
	AnomalyParentCycle AnomalyKind = "parent_cycle"
	// AnomalyDuplicateRow: the same id appears twice. The first row wins.
	AnomalyDuplicateRow AnomalyKind = "duplicate_row"
)

// Anomaly describes a row that could not be placed as declared.
type Anomaly struct {
	Kind     AnomalyKind
	ReviewID uint
	ReplyID  uint
	ParentID uint
}

func (a Anomaly) Error() string {
	return fmt.Sprintf("%s: review=%d reply=%d parent=%d", a.Kind, a.ReviewID, a.ReplyID, a.ParentID)
}

func (a Anomaly) Unwrap() error {
	return apperr.ErrIntegrity
}

const (
	unvisited uint8 = iota
	visiting
	done
)

// Assemble builds the review forest of one game from flat rows.
//
// Reviews come out newest first and every reply list oldest first. A deleted review is kept
// (with placeholder text) only while at least one live reply remains somewhere below it.
// Every reply whose review is present appears exactly once. Rows that cannot be placed as
// declared are reported as anomalies instead of failing the whole thread.
func Assemble(reviews []ReviewRow, replies []ReplyRow) ([]*ReviewNode, []Anomaly) {
	var anomalies []Anomaly

	reviewByID := make(map[uint]*ReviewNode, len(reviews))
	reviewOrder := make([]uint, 0, len(reviews))
	for i := range reviews {
		row := &reviews[i]
		if _, dup := reviewByID[row.ID]; dup {
			anomalies = append(anomalies, Anomaly{Kind: AnomalyDuplicateRow, ReviewID: row.ID})
			continue
		}
		reviewByID[row.ID] = newReviewNode(row)
		reviewOrder = append(reviewOrder, row.ID)
	}

	replyByID := make(map[uint]*ReplyNode, len(replies))
	replyOrder := make([]uint, 0, len(replies))
	for i := range replies {
		row := &replies[i]
		if _, dup := replyByID[row.ID]; dup {
			anomalies = append(anomalies, Anomaly{Kind: AnomalyDuplicateRow, ReviewID: row.ReviewID, ReplyID: row.ID})
			continue
		}
		if _, ok := reviewByID[row.ReviewID]; !ok {
			anomalies = append(anomalies, Anomaly{Kind: AnomalyOrphanReply, ReviewID: row.ReviewID, ReplyID: row.ID})
			continue
		}
		replyByID[row.ID] = newReplyNode(row)
		replyOrder = append(replyOrder, row.ID)
	}
	sort.Slice(replyOrder, func(i, j int) bool { return replyOrder[i] < replyOrder[j] })

	// 解析父回复：找不到或跨评测的父节点退回到评测下
	parentOf := make(map[uint]uint, len(replyOrder))
	for _, id := range replyOrder {
		node := replyByID[id]
		if node.ParentID == nil {
			continue
		}
		pid := *node.ParentID
		parent, ok := replyByID[pid]
		switch {
		case !ok:
			anomalies = append(anomalies, Anomaly{Kind: AnomalyDanglingParent, ReviewID: node.ReviewID, ReplyID: id, ParentID: pid})
		case parent.ReviewID != node.ReviewID:
			anomalies = append(anomalies, Anomaly{Kind: AnomalyCrossReviewParent, ReviewID: node.ReviewID, ReplyID: id, ParentID: pid})
		default:
			parentOf[id] = pid
		}
	}

	// Break parent cycles so that every reply stays reachable from its review.
	state := make(map[uint]uint8, len(replyOrder))
	for _, id := range replyOrder {
		var path []uint
		cur, hasParent := id, true
		for hasParent && state[cur] == unvisited {
			state[cur] = visiting
			path = append(path, cur)
			cur, hasParent = parentOf[cur]
		}
		if hasParent && state[cur] == visiting {
			anomalies = append(anomalies, Anomaly{Kind: AnomalyParentCycle, ReviewID: replyByID[cur].ReviewID, ReplyID: cur, ParentID: parentOf[cur]})
			delete(parentOf, cur)
		}
		for _, p := range path {
			state[p] = done
		}
	}

	liveReplies := make(map[uint]bool, len(reviewByID))
	for _, id := range replyOrder {
		node := replyByID[id]
		if pid, ok := parentOf[id]; ok {
			parent := replyByID[pid]
			parent.Replies = append(parent.Replies, node)
		} else {
			// 父链接被丢弃时 parent_id 也要和嵌套一致
			node.ParentID = nil
			review := reviewByID[node.ReviewID]
			review.Replies = append(review.Replies, node)
		}
		// 所有回复都挂在同一评测子树下，因此按 review_id 记录即为“子树中存在未删除回复”
		if !node.Deleted() {
			liveReplies[node.ReviewID] = true
		}
	}

	forest := make([]*ReviewNode, 0, len(reviewOrder))
	for _, id := range reviewOrder {
		review := reviewByID[id]
		if review.Deleted() && !liveReplies[id] {
			continue
		}
		sortReplies(review.Replies)
		forest = append(forest, review)
	}

	sort.SliceStable(forest, func(i, j int) bool {
		a, b := forest[i], forest[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	return forest, anomalies
}

func sortReplies(replies []*ReplyNode) {
	sort.SliceStable(replies, func(i, j int) bool {
		a, b := replies[i], replies[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	for _, r := range replies {
		sortReplies(r.Replies)
	}
}
