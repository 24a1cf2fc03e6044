// internal/workflow/notify/notifier.go
package notify

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"admitbridge/internal/common/config"
	"admitbridge/internal/common/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/google/uuid"
)

var ErrNotificationSendFailed = errors.New("NOTIFICATION_SEND_FAILED")

// Define interfaces for mocking
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// CounselorNotification is one post-submission notification addressed to the
// student's assigned counselor.
type CounselorNotification struct {
	TenantID       string
	CounselorID    string
	CounselorEmail string
	CounselorPhone string
	StudentName    string
	ProgramName    string
	UniversityName string
	ApplicationID  string
	Reference      string
	Priority       string // "normal" or "high"
}

// Notifier records a notifications row and pushes the email/SMS channels.
// Every channel is best-effort: a failed push never fails the submission.
type Notifier struct {
	cfg       config.NotificationConfig
	db        *sql.DB
	logger    logger.Logger
	sesClient SESService
	snsClient SNSService
}

func NewNotifier(ctx context.Context, cfg config.NotificationConfig, db *sql.DB, log logger.Logger) (*Notifier, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return &Notifier{
		cfg:       cfg,
		db:        db,
		logger:    log.WithFields(map[string]interface{}{"component": "notify"}),
		sesClient: ses.NewFromConfig(awsCfg),
		snsClient: sns.NewFromConfig(awsCfg),
	}, nil
}

// NewNotifierWithClients wires preconstructed channel clients; used in tests.
func NewNotifierWithClients(cfg config.NotificationConfig, db *sql.DB, sesClient SESService, snsClient SNSService, log logger.Logger) *Notifier {
	return &Notifier{
		cfg:       cfg,
		db:        db,
		logger:    log.WithFields(map[string]interface{}{"component": "notify"}),
		sesClient: sesClient,
		snsClient: snsClient,
	}
}

// NotifyCounselor delivers the notification. The notifications row is the
// source of truth; email and SMS channels are attempted after it and their
// failures only logged.
func (n *Notifier) NotifyCounselor(ctx context.Context, cn CounselorNotification) error {
	title := "New application submitted"
	message := fmt.Sprintf("%s submitted an application to %s at %s (ref %s)",
		cn.StudentName, cn.ProgramName, cn.UniversityName, cn.Reference)

	payload, err := json.Marshal(map[string]interface{}{
		"applicationId": cn.ApplicationID,
		"reference":     cn.Reference,
		"programName":   cn.ProgramName,
	})
	if err != nil {
		payload = []byte("{}")
	}

	_, err = n.db.ExecContext(ctx, `
		INSERT INTO notifications (id, tenant_id, recipient_id, recipient_type, type, title, message, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.New().String(),
		cn.TenantID,
		cn.CounselorID,
		"counselor",
		"application_submitted",
		title,
		message,
		payload,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("%w: insert notification: %v", ErrNotificationSendFailed, err)
	}

	if n.cfg.Email.Enabled && cn.CounselorEmail != "" {
		if err := n.sendEmail(ctx, cn.CounselorEmail, title, message); err != nil {
			n.logger.Error("notification email failed", map[string]interface{}{
				"counselorId": cn.CounselorID,
				"error":       err.Error(),
			})
		}
	}

	if n.cfg.SMS.Enabled && cn.CounselorPhone != "" && cn.Priority == n.cfg.SMS.PriorityThreshold {
		if err := n.sendSMS(ctx, cn.CounselorPhone, message); err != nil {
			n.logger.Error("notification SMS failed", map[string]interface{}{
				"counselorId": cn.CounselorID,
				"error":       err.Error(),
			})
		}
	}

	return nil
}

func (n *Notifier) sendEmail(ctx context.Context, to, subject, body string) error {
	_, err := n.sesClient.SendEmail(ctx, &ses.SendEmailInput{
		Source: aws.String(n.cfg.Email.FromEmail),
		Destination: &sestypes.Destination{
			ToAddresses: []string{to},
		},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{Data: aws.String(subject)},
			Body: &sestypes.Body{
				Text: &sestypes.Content{Data: aws.String(body)},
			},
		},
	})
	return err
}

func (n *Notifier) sendSMS(ctx context.Context, phone, message string) error {
	_, err := n.snsClient.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(phone),
		Message:     aws.String(message),
	})
	return err
}
