package catalog

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/ecokart/backend/internal/model/catalog"
	"github.com/zhouzirui/ecokart/backend/pkg/utils"
)

// Handler 商品目录的HTTP处理器
type Handler struct {
	store     catalog.Store
	matchSize int
}

// New 创建商品目录处理器
func New(store catalog.Store, matchSize int) *Handler {
	if matchSize <= 0 {
		matchSize = catalog.DefaultMatchLimit
	}
	return &Handler{store: store, matchSize: matchSize}
}

// RegisterRoutes 注册商品目录相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/products", h.handleList)
	r.Get("/products/search", h.handleSearch)
	r.Get("/products/match", h.handleMatch)
	r.Get("/products/{name}", h.handleGet)
}

type productView struct {
	catalog.Product
	PriceLabel string `json:"priceLabel"`
}

func toViews(items []catalog.Product) []productView {
	views := make([]productView, 0, len(items))
	for _, item := range items {
		views = append(views, productView{Product: item, PriceLabel: item.PriceLabel()})
	}
	return views
}

// handleList 列出全部商品，保持目录加载顺序
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, toViews(h.store.List()))
}

// handleSearch 按名称或分类搜索商品
func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		utils.RespondError(w, http.StatusBadRequest, "q is required")
		return
	}
	utils.RespondJSON(w, http.StatusOK, toViews(h.store.Search(query)))
}

// handleMatch 返回一句用户输入会命中的商品，与对话中的匹配规则一致
func (h *Handler) handleMatch(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, toViews(h.store.Match(r.URL.Query().Get("q"), h.matchSize)))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	product, ok := h.store.FindByName(chi.URLParam(r, "name"))
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "product not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, productView{Product: product, PriceLabel: product.PriceLabel()})
}
