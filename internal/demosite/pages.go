package demosite

// PageDefinition is one demo page with a description of the accessibility
// defects it intentionally carries.
type PageDefinition struct {
	Path        string
	Description string
	Defects     []string
	HTML        string
}

// GetAllPages returns the demo page definitions.
func GetAllPages() []PageDefinition {
	return []PageDefinition{
		getCleanPage(),
		getImagesPage(),
		getFormsPage(),
		getStructurePage(),
	}
}

func getCleanPage() PageDefinition {
	return PageDefinition{
		Path:        "/",
		Description: "Accessible baseline page, should score near 100",
		Defects:     nil,
		HTML: `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8">
    <title>Demo Site - Accessible Home</title>
    <meta name="description" content="Baseline page with no known accessibility defects">
</head>
<body>
    <header>
        <h1>Accessibility Demo Site</h1>
        <nav aria-label="Main">
            <a href="/">Home</a> |
            <a href="/images">Images</a> |
            <a href="/forms">Forms</a> |
            <a href="/structure">Structure</a>
        </nav>
    </header>
    <main>
        <p>Every other page on this site carries deliberate accessibility defects.
        Scan them and compare the scores.</p>
        <img src="/static/logo.png" alt="Demo site logo">
    </main>
    <footer><p>Demo content only.</p></footer>
</body>
</html>`,
	}
}

func getImagesPage() PageDefinition {
	return PageDefinition{
		Path:        "/images",
		Description: "Images without alternate text",
		Defects: []string{
			"image-alt: three img elements with no alt attribute",
			"image-alt: one img with a meaningless alt",
		},
		HTML: `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8">
    <title>Demo Site - Images</title>
</head>
<body>
    <h1>Image Gallery</h1>
    <img src="/static/photo1.png">
    <img src="/static/photo2.png">
    <img src="/static/photo3.png">
    <img src="/static/chart.png" alt="image">
    <p>None of the images above describe themselves to a screen reader.</p>
</body>
</html>`,
	}
}

func getFormsPage() PageDefinition {
	return PageDefinition{
		Path:        "/forms",
		Description: "Form controls without labels, button without text",
		Defects: []string{
			"label: inputs with no associated label element",
			"button-name: icon button with no accessible name",
			"select-name: unlabeled select",
		},
		HTML: `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8">
    <title>Demo Site - Forms</title>
</head>
<body>
    <h1>Contact Us</h1>
    <form action="/forms" method="post">
        <input type="text" name="name" placeholder="Name">
        <input type="email" name="email" placeholder="Email">
        <select name="topic">
            <option>Support</option>
            <option>Sales</option>
        </select>
        <textarea name="message"></textarea>
        <button type="submit"><span class="icon-send"></span></button>
    </form>
</body>
</html>`,
	}
}

func getStructurePage() PageDefinition {
	return PageDefinition{
		Path:        "/structure",
		Description: "Document-level defects: no lang, no title, bad heading order",
		Defects: []string{
			"html-has-lang: html element missing lang",
			"document-title: empty title",
			"heading-order: h4 before any h1",
		},
		HTML: `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title></title>
</head>
<body>
    <h4>Deep heading first</h4>
    <h1>Then the top-level heading</h1>
    <p>This document is missing its language attribute and has an empty title.</p>
    <a href="#"></a>
</body>
</html>`,
	}
}
