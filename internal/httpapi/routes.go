package httpapi

import "github.com/gin-gonic/gin"

// Mount wires the page-facing API onto r.
func Mount(r gin.IRouter, h Handlers) {
	v1 := r.Group("/v1")

	creds := v1.Group("/credentials")
	{
		creds.GET("", h.GetCredentials)
		creds.PUT("", h.SaveCredentials)
		creds.PATCH("", h.UpdateCredentials)
		creds.DELETE("", h.ClearCredentials)
		creds.POST("/validate", h.ValidateCredentials)
		creds.GET("/status", h.CredentialsStatus)
		creds.GET("/export", h.ExportCredentials)
		creds.POST("/import", h.ImportCredentials)
	}

	contacts := v1.Group("/contacts")
	{
		contacts.GET("", h.ListContacts)
		contacts.POST("", h.AddContact)
		contacts.GET("/favorites", h.FavoriteContacts)
		contacts.GET("/frequent", h.FrequentContacts)
		contacts.GET("/lookup", h.LookupContact)
		contacts.GET("/export", h.ExportContacts)
		contacts.POST("/import", h.ImportContacts)
		contacts.GET("/:id", h.GetContact)
		contacts.PUT("/:id", h.UpdateContact)
		contacts.DELETE("/:id", h.DeleteContact)
		contacts.POST("/:id/favorite", h.ToggleFavorite)
	}

	hist := v1.Group("/history")
	{
		hist.GET("", h.ListHistory)
		hist.POST("", h.AddHistory)
		hist.DELETE("", h.ClearHistory)
		hist.GET("/stats", h.HistoryStats)
		hist.GET("/daily", h.HistoryDaily)
		hist.GET("/recent", h.RecentHistory)
		hist.GET("/missed", h.MissedHistory)
		hist.GET("/export", h.ExportHistory)
		hist.POST("/import", h.ImportHistory)
		hist.PATCH("/:id", h.UpdateHistory)
		hist.DELETE("/:id", h.DeleteHistory)
	}

	sess := v1.Group("/session")
	{
		sess.GET("", h.SessionState)
		sess.POST("/connect", h.Connect)
		sess.POST("/disconnect", h.Disconnect)
		sess.POST("/call", h.MakeCall)
		sess.POST("/accept", h.AcceptCall)
		sess.POST("/reject", h.RejectCall)
		sess.POST("/hangup", h.Hangup)
		sess.POST("/mute", h.ToggleMute)
		sess.POST("/hold", h.ToggleHold)
		sess.POST("/tones", h.SendTone)
	}

	sms := v1.Group("/sms")
	{
		sms.POST("", h.SendSMS)
		sms.GET("/conversations", h.Conversations)
		sms.GET("/messages", h.Messages)
		sms.GET("/numbers", h.PhoneNumbers)
	}

	v1.GET("/events", h.Events)

	br := r.Group("/bridge")
	{
		br.GET("/commands", h.BridgeCommands)
		br.POST("/events", h.BridgeEvent)
	}
}
