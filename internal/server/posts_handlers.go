package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/chirp/internal/failures"
	"github.com/MarcoPoloResearchLab/chirp/internal/posts"
	"github.com/gin-gonic/gin"
)

const opTimelineQuery = "server.timeline"

type offsetPagePayload struct {
	Posts      []posts.View `json:"posts"`
	HasMore    bool         `json:"hasMore"`
	NextOffset int          `json:"nextOffset"`
}

type cursorPagePayload struct {
	Posts      []posts.View `json:"posts"`
	NextCursor *string      `json:"nextCursor"`
}

type submitPostPayload struct {
	Text string `json:"text"`
}

func pagePayload(page posts.Page) interface{} {
	if page.Mode == posts.PaginationCursor {
		return cursorPagePayload{Posts: posts.Views(page.Posts), NextCursor: page.NextCursor}
	}
	return offsetPagePayload{
		Posts:      posts.Views(page.Posts),
		HasMore:    page.HasMore,
		NextOffset: page.NextOffset,
	}
}

func (h *httpHandler) handleFeed(c *gin.Context) {
	request, err := h.limits.OffsetRequest(c.Query("limit"), c.Query("offset"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	page, err := h.timeline.Feed(c.Request.Context(), request)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pagePayload(page))
}

func (h *httpHandler) handleTimeline(c *gin.Context) {
	request, err := h.timelineRequest(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	page, err := h.timeline.Timeline(c.Request.Context(), c.Param("handle"), request)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pagePayload(page))
}

// timelineRequest picks cursor mode when the cursor parameter is present at all.
func (h *httpHandler) timelineRequest(c *gin.Context) (posts.PageRequest, error) {
	cursor, hasCursor := c.GetQuery("cursor")
	_, hasOffset := c.GetQuery("offset")
	if hasCursor && hasOffset {
		return posts.PageRequest{}, failures.InvalidInput(opTimelineQuery, "mixed_modes", "cursor and offset cannot be combined")
	}
	if hasCursor {
		return h.limits.CursorRequest(c.Query("limit"), cursor)
	}
	return h.limits.OffsetRequest(c.Query("limit"), c.Query("offset"))
}

// handleSubmitPost resolves the caller itself so that text rules are reported before
// missing credentials.
func (h *httpHandler) handleSubmitPost(c *gin.Context) {
	var payload submitPostPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		payload.Text = ""
	}

	request := posts.SubmitRequest{Text: payload.Text}
	if identity, err := h.resolveIdentity(c); err == nil {
		request.Author = &identity
	}

	post, err := h.submissions.Submit(c.Request.Context(), request)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, post.View())
}
