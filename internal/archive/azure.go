package archive

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/sirupsen/logrus"
)

// Archive keeps an audit copy of raw provider responses. The pipeline only
// ever appends; reads are for operators chasing a bad extraction run.
type Archive interface {
	Store(filename string, data []byte) error
	Retrieve(filename string) ([]byte, error)
	List(prefix string) ([]string, error)
}

// AzureArchive stores response blobs in an Azure container.
type AzureArchive struct {
	client    *azblob.Client
	container string
}

var _ Archive = (*AzureArchive)(nil)

// NewAzureArchive creates an archive client authenticated via the default
// credential chain (managed identity in deployment).
func NewAzureArchive(accountName, container string) (*AzureArchive, error) {
	if accountName == "" {
		return nil, fmt.Errorf("storage account name is required")
	}

	credential, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", accountName)
	client, err := azblob.NewClient(serviceURL, credential, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure blob client: %w", err)
	}

	a := &AzureArchive{client: client, container: container}
	if err := a.ensureContainer(); err != nil {
		return nil, fmt.Errorf("failed to ensure container exists: %w", err)
	}

	return a, nil
}

func (a *AzureArchive) ensureContainer() error {
	_, err := a.client.CreateContainer(context.Background(), a.container, nil)
	if err != nil {
		if !strings.Contains(err.Error(), "ContainerAlreadyExists") {
			return err
		}
		logrus.Debugf("Archive container %s already exists", a.container)
	} else {
		logrus.Infof("Created archive container %s", a.container)
	}
	return nil
}

// Store uploads one response blob.
func (a *AzureArchive) Store(filename string, data []byte) error {
	_, err := a.client.UploadBuffer(context.Background(), a.container, filename, data, nil)
	if err != nil {
		return fmt.Errorf("failed to upload archive blob %s: %w", filename, err)
	}

	logrus.Debugf("Archived %s (%d bytes)", filename, len(data))
	return nil
}

// Retrieve downloads one archived response.
func (a *AzureArchive) Retrieve(filename string) ([]byte, error) {
	response, err := a.client.DownloadStream(context.Background(), a.container, filename, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to download archive blob %s: %w", filename, err)
	}
	defer response.Body.Close()

	data, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive blob content: %w", err)
	}

	return data, nil
}

// List returns the archived blob names under a prefix.
func (a *AzureArchive) List(prefix string) ([]string, error) {
	var names []string
	pager := a.client.NewListBlobsFlatPager(a.container, &azblob.ListBlobsFlatOptions{Prefix: &prefix})

	for pager.More() {
		page, err := pager.NextPage(context.Background())
		if err != nil {
			return nil, fmt.Errorf("failed to list archive blobs: %w", err)
		}
		for _, blob := range page.Segment.BlobItems {
			if blob.Name != nil {
				names = append(names, *blob.Name)
			}
		}
	}

	return names, nil
}
