package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"callbridge/internal/phone"
	"callbridge/internal/recommender"
)

// SuggestDestination picks the next Destination for the session. Without a
// country the User's own country is used, unless all countries are asked for.
func (h Handlers) SuggestDestination(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	all := h.AllCountriesDefault
	if v := c.Query("all_countries"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "all_countries must be a boolean"})
			return
		}
		all = b
	}
	country := c.Query("country")
	if country == "" && !all {
		if num, err := phone.Parse(sess.Phone, ""); err == nil {
			country = num.Region
		}
	}
	if all {
		country = ""
	}

	d, err := h.Destinations.SuggestForSession(c.Request.Context(), sess.ID, country)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// SelectDestination pins a Destination for the next Instant Call.
func (h Handlers) SelectDestination(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	d, err := h.Destinations.Select(c.Request.Context(), sess.ID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

type searchResponse struct {
	Results []recommender.Destination `json:"results"`
}

// SearchDestinations finds Destinations by part of their name. It is public
// so the campaign page can offer a search before verification.
func (h Handlers) SearchDestinations(c *gin.Context) {
	all := true
	if v := c.Query("all_countries"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "all_countries must be a boolean"})
			return
		}
		all = b
	}
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be a number"})
			return
		}
		limit = n
	}
	dests, err := h.Destinations.Search(c.Request.Context(), c.Query("name"), c.Query("country"), all, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	if dests == nil {
		dests = []recommender.Destination{}
	}
	c.JSON(http.StatusOK, searchResponse{Results: dests})
}
