package httpapi

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter wires the planning API. CORS admits the local SPA dev server
// only; the engine itself binds to loopback.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000", "http://127.0.0.1:3000"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	api := r.Group("/api")
	{
		api.GET("/health", h.Health)
		api.GET("/state", h.State)

		api.POST("/session/connect", h.Connect)
		api.POST("/session/sign", h.Sign)
		api.POST("/session/disconnect", h.Disconnect)

		api.PUT("/owner", h.SetOwner)

		api.POST("/wallets", h.AddWallet)
		api.DELETE("/wallets/:id", h.RemoveWallet)

		api.POST("/beneficiaries", h.AddBeneficiary)
		api.DELETE("/beneficiaries/:id", h.RemoveBeneficiary)

		api.GET("/assets", h.Assets)
		api.POST("/assets/demo", h.DemoAssets)

		api.POST("/splits/add", h.AddSplit)
		api.POST("/splits/set", h.SetSplit)
		api.POST("/splits/remove", h.RemoveSplit)
		api.POST("/assignments/save", h.SaveAssignments)

		api.POST("/payment", h.Pay)
		api.GET("/document", h.Document)
	}

	return r
}
