package outlook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	abstractions "github.com/microsoft/kiota-abstractions-go"
	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"
	"github.com/microsoftgraph/msgraph-sdk-go/models"
	"github.com/microsoftgraph/msgraph-sdk-go/models/odataerrors"
	"github.com/microsoftgraph/msgraph-sdk-go/users"

	"github.com/teemow/calbridge/internal/credential"
	"github.com/teemow/calbridge/internal/provider"
)

var graphScopes = []string{"User.Read", "Calendars.ReadWrite"}

// eventsAPI is the slice of the Graph API the adapter uses.
type eventsAPI interface {
	CalendarView(ctx context.Context, start, end time.Time) ([]models.Eventable, error)
	Create(ctx context.Context, ev models.Eventable) (models.Eventable, error)
	Update(ctx context.Context, id string, ev models.Eventable) (models.Eventable, error)
	Delete(ctx context.Context, id string) error
}

// clientFactory builds an eventsAPI acting as the credential's owner.
type clientFactory func(ctx context.Context, cred credential.Credential) (eventsAPI, error)

// tokenCredential hands a delegated token obtained elsewhere to the Graph SDK.
type tokenCredential struct {
	cred credential.Credential
}

var _ azcore.TokenCredential = (*tokenCredential)(nil)

func (t *tokenCredential) GetToken(_ context.Context, _ policy.TokenRequestOptions) (azcore.AccessToken, error) {
	if !t.cred.Valid(time.Now()) {
		return azcore.AccessToken{}, fmt.Errorf("%w: outlook token is expired", credential.ErrAbsent)
	}
	expires := t.cred.Expiry
	if expires.IsZero() {
		expires = time.Now().Add(time.Hour)
	}
	return azcore.AccessToken{Token: t.cred.AccessToken, ExpiresOn: expires}, nil
}

func newGraphClient(_ context.Context, cred credential.Credential) (eventsAPI, error) {
	client, err := msgraphsdk.NewGraphServiceClientWithCredentials(&tokenCredential{cred: cred}, graphScopes)
	if err != nil {
		return nil, fmt.Errorf("failed to create graph client: %w", err)
	}
	return &graphEvents{client: client}, nil
}

// graphEvents calls the signed-in user's default calendar.
type graphEvents struct {
	client *msgraphsdk.GraphServiceClient
}

func preferHeaders() *abstractions.RequestHeaders {
	headers := abstractions.NewRequestHeaders()
	headers.Add("Prefer", `outlook.timezone="UTC"`)
	headers.Add("Prefer", `outlook.body-content-type="text"`)
	return headers
}

func (g *graphEvents) CalendarView(ctx context.Context, start, end time.Time) ([]models.Eventable, error) {
	startDateTime := start.UTC().Format(time.RFC3339)
	endDateTime := end.UTC().Format(time.RFC3339)

	builder := g.client.Me().CalendarView()
	resp, err := builder.Get(ctx, &users.ItemCalendarViewRequestBuilderGetRequestConfiguration{
		Headers: preferHeaders(),
		QueryParameters: &users.ItemCalendarViewRequestBuilderGetQueryParameters{
			StartDateTime: &startDateTime,
			EndDateTime:   &endDateTime,
			Orderby:       []string{"start/dateTime"},
		},
	})

	var out []models.Eventable
	for {
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, resp.GetValue()...)

		next := resp.GetOdataNextLink()
		if next == nil || *next == "" {
			return out, nil
		}
		resp, err = builder.WithUrl(*next).Get(ctx, &users.ItemCalendarViewRequestBuilderGetRequestConfiguration{
			Headers: preferHeaders(),
		})
	}
}

func (g *graphEvents) Create(ctx context.Context, ev models.Eventable) (models.Eventable, error) {
	created, err := g.client.Me().Events().Post(ctx, ev, nil)
	if err != nil {
		return nil, classify(err)
	}
	return created, nil
}

func (g *graphEvents) Update(ctx context.Context, id string, ev models.Eventable) (models.Eventable, error) {
	updated, err := g.client.Me().Events().ByEventId(id).Patch(ctx, ev, nil)
	if err != nil {
		return nil, classify(err)
	}
	return updated, nil
}

func (g *graphEvents) Delete(ctx context.Context, id string) error {
	if err := g.client.Me().Events().ByEventId(id).Delete(ctx, nil); err != nil {
		return classify(err)
	}
	return nil
}

// classify adds the Graph error message and maps 404 onto provider.ErrNotFound.
func classify(err error) error {
	var odataErr *odataerrors.ODataError
	if !errors.As(err, &odataErr) {
		return err
	}
	if main := odataErr.GetErrorEscaped(); main != nil && main.GetMessage() != nil {
		err = fmt.Errorf("%w: %s", err, *main.GetMessage())
	}
	if odataErr.ResponseStatusCode == http.StatusNotFound {
		err = fmt.Errorf("%w: %w", provider.ErrNotFound, err)
	}
	return err
}
