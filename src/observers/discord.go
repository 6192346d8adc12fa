package observers

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/stake-plus/postoracle/src/ledger"
	"github.com/stake-plus/postoracle/src/logging"
	"github.com/stake-plus/postoracle/src/poller"
	"github.com/stake-plus/postoracle/src/webclient"
)

// EmbedSender is the part of *discordgo.Session the announcer uses.
type EmbedSender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// OpenDiscord builds a REST-only bot session; no gateway connection is opened.
func OpenDiscord(token string) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	return s, nil
}

// Announcer posts an embed to a channel when a session reaches a moderation outcome or
// runs out of attempts. Cancelled sessions are not announced.
type Announcer struct {
	sender     EmbedSender
	channelID  string
	gateway    string
	retryDelay time.Duration
	logger     *log.Logger
}

const announceAttempts = 3

func NewAnnouncer(sender EmbedSender, channelID, ipfsGateway string, logger *log.Logger) *Announcer {
	return &Announcer{
		sender:     sender,
		channelID:  channelID,
		gateway:    ipfsGateway,
		retryDelay: 2 * time.Second,
		logger:     logging.OrDiscard(logger),
	}
}

func (a *Announcer) Observe(context.Context, poller.Update) {}

func (a *Announcer) Finished(ctx context.Context, o poller.Outcome) {
	if o.State != poller.Terminal && o.State != poller.Exhausted {
		return
	}
	embed := a.embed(o)
	err := webclient.Retry(ctx, announceAttempts, a.retryDelay, logging.IsRateLimit, func() error {
		_, err := a.sender.ChannelMessageSendEmbed(a.channelID, embed)
		return err
	})
	if err != nil {
		a.logger.Printf("discord announce post %s: %s", o.PostID, logging.Describe(err))
	}
}

func (a *Announcer) embed(o poller.Outcome) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title:     fmt.Sprintf("Post #%s", o.PostID),
		Color:     0x808080,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Footer:    &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("postoracle | %d checks", o.Attempts)},
	}

	if o.State == poller.Exhausted || o.Last == nil {
		e.Description = "Still pending after the polling budget ran out."
		return e
	}

	p := o.Last
	e.Description = fmt.Sprintf("Moderation result: **%s**", p.Status)
	switch p.Status {
	case ledger.StatusApproved:
		e.Color = 0x2ecc71
	case ledger.StatusRejected:
		e.Color = 0xe74c3c
	case ledger.StatusFailed:
		e.Color = 0xf39c12
	}
	e.Author = &discordgo.MessageEmbedAuthor{Name: fmt.Sprintf("%s (%s)", p.Username, formatAddress(p.Author.Hex()))}
	e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
		Name:   "Similarity",
		Value:  fmt.Sprintf("%d", p.SimilarityScore),
		Inline: true,
	})
	if link := p.GatewayURL(a.gateway); link != "" {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
			Name:  "Content",
			Value: fmt.Sprintf("[IPFS](%s)", link),
		})
	}
	return e
}

func formatAddress(addr string) string {
	if len(addr) > 16 {
		return addr[:8] + "..." + addr[len(addr)-6:]
	}
	return addr
}
