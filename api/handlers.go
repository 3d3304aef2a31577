package api

import (
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"liquorbot/models"
	"liquorbot/services"
	"liquorbot/storage"
	"liquorbot/utils"
)

const maxLimit = 50

// Handlers holds the HTTP request handlers.
type Handlers struct {
	ranker    *services.Ranker
	store     storage.ListingStore
	locations *services.LocationDirectory
	insights  *services.InsightService
	logger    *utils.Logger
}

func NewHandlers(
	ranker *services.Ranker,
	store storage.ListingStore,
	locations *services.LocationDirectory,
	insights *services.InsightService,
	logger *utils.Logger,
) *Handlers {
	return &Handlers{
		ranker:    ranker,
		store:     store,
		locations: locations,
		insights:  insights,
		logger:    logger,
	}
}

// StockEntry is the stock at one requested location.
type StockEntry struct {
	LocationID int    `json:"locationId"`
	Location   string `json:"location"`
	Available  int    `json:"available"`
}

// ListingView is a ranked listing as rendered for clients.
type ListingView struct {
	*models.Listing
	ShelfPrice float64      `json:"shelfPrice"`
	Stock      []StockEntry `json:"stock"`
}

func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Listings answers GET /listings?type=gin&max_price=30&stores=fort,james&limit=5.
// Numeric store terms are taken as location ids.
func (h *Handlers) Listings(c *gin.Context) {
	q := services.Query{Type: c.DefaultQuery("type", "all")}

	if raw := c.Query("max_price"); raw != "" {
		maxPrice, err := strconv.ParseFloat(raw, 64)
		if err != nil || maxPrice < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "max_price must be a non-negative number"})
			return
		}
		q.MaxPrice = maxPrice
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		q.Limit = min(limit, maxLimit)
	}

	q.Locations = h.locations.Resolve(splitTerms(c.Query("stores")))

	results, err := h.ranker.Query(c.Request.Context(), q)
	if err != nil {
		h.logger.Error("[api] listings query failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	views := make([]ListingView, 0, len(results))
	for _, l := range results {
		views = append(views, h.view(l))
	}
	c.JSON(http.StatusOK, gin.H{"count": len(views), "listings": views})
}

func (h *Handlers) Locations(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"locations": h.locations.All()})
}

func (h *Handlers) Insights(c *gin.Context) {
	listings, err := h.store.Scan(c.Request.Context())
	if err != nil {
		h.logger.Error("[api] insights scan failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "scan failed"})
		return
	}
	c.JSON(http.StatusOK, h.insights.Generate(listings))
}

func (h *Handlers) view(l *models.Listing) ListingView {
	stock := make([]StockEntry, 0, len(l.Inventory))
	for id, n := range l.Inventory {
		if n <= 0 {
			continue
		}
		stock = append(stock, StockEntry{LocationID: id, Location: h.locations.Name(id), Available: n})
	}
	sort.Slice(stock, func(i, j int) bool { return stock[i].LocationID < stock[j].LocationID })

	return ListingView{
		Listing:    l,
		ShelfPrice: l.ShelfPrice(h.ranker.TaxMultiplier()),
		Stock:      stock,
	}
}

func splitTerms(raw string) []string {
	var terms []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			terms = append(terms, t)
		}
	}
	return terms
}
