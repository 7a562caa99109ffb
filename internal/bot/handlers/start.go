package handlers

import (
	"context"

	"github.com/Proton-105/tasklink-bot/internal/i18n"
)

// NewStartHandler greets the chat. A token carried by the deep link is then redeemed through link.
func NewStartHandler(link Handler, sender Sender, tr i18n.Translator) Handler {
	return func(ctx context.Context, req *Request) error {
		sender.Send(ctx, req.ChatID, tr.T("start.welcome"))
		if len(req.Args) != 1 {
			return nil
		}

		linkReq := *req
		linkReq.Command = CommandLink
		linkReq.Text = req.Args[0]
		linkReq.Args = nil
		return link(ctx, &linkReq)
	}
}
