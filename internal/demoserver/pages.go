package demoserver

// PageVersion is one rendition of a page.
type PageVersion struct {
	HTML        string
	ContentType string
	Headers     map[string]string

	// Defects lists the rule codes this rendition is expected to trip.
	Defects []string
}

// PageDefinition holds every version of a single page. Version 1 is the most
// broken; higher versions fix defects one step at a time.
type PageDefinition struct {
	Path        string
	Description string
	Versions    map[int]PageVersion
}

var serverHeaders = map[string]string{
	"Server":       "nginx/1.25.3",
	"X-Powered-By": "PHP/8.2.1",
}

// GetAllPages returns all demo page definitions.
func GetAllPages() []PageDefinition {
	return []PageDefinition{
		homePage(),
		signupPage(),
		mediaPage(),
		productsPage(),
	}
}

// ===== HOME =====
func homePage() PageDefinition {
	return PageDefinition{
		Path:        "/",
		Description: "Landing page: missing lang, unlabelled logo and icon links",
		Versions: map[int]PageVersion{
			1: {
				Headers: serverHeaders,
				Defects: []string{"html-has-lang", "image-alt", "link-name", "heading-order", "landmark-one-main"},
				HTML: `<!DOCTYPE html>
<html>
<head>
    <title>Demo Shop - Home</title>
    <meta name="generator" content="WordPress 6.4.2">
    <script src="/static/jquery-3.7.1.min.js"></script>
</head>
<body>
    <div class="header">
        <img src="/static/logo.png">
        <a href="/cart"><i class="icon-cart"></i></a>
    </div>
    <h1>Spring sale</h1>
    <h4>Everything must go</h4>
    <p>Browse <a href="/products">products</a> or <a href="/signup">sign up</a>.</p>
</body>
</html>`,
			},
			2: {
				Headers: serverHeaders,
				Defects: []string{"heading-order"},
				HTML: `<!DOCTYPE html>
<html lang="en">
<head>
    <title>Demo Shop - Home</title>
    <meta name="generator" content="WordPress 6.4.2">
    <script src="/static/jquery-3.7.1.min.js"></script>
</head>
<body>
    <header>
        <img src="/static/logo.png" alt="Demo Shop">
        <a href="/cart" aria-label="Shopping cart"><i class="icon-cart"></i></a>
    </header>
    <main>
        <h1>Spring sale</h1>
        <h4>Everything must go</h4>
        <p>Browse <a href="/products">products</a> or <a href="/signup">sign up</a>.</p>
    </main>
</body>
</html>`,
			},
			3: {
				Headers: serverHeaders,
				HTML: `<!DOCTYPE html>
<html lang="en">
<head>
    <title>Demo Shop - Home</title>
    <meta name="generator" content="WordPress 6.4.2">
    <script src="/static/jquery-3.7.1.min.js"></script>
</head>
<body>
    <header>
        <img src="/static/logo.png" alt="Demo Shop">
        <a href="/cart" aria-label="Shopping cart"><i class="icon-cart"></i></a>
    </header>
    <main>
        <h1>Spring sale</h1>
        <h2>Everything must go</h2>
        <p>Browse <a href="/products">products</a> or <a href="/signup">sign up</a>.</p>
    </main>
</body>
</html>`,
			},
		},
	}
}

// ===== SIGNUP =====
func signupPage() PageDefinition {
	return PageDefinition{
		Path:        "/signup",
		Description: "Signup form: placeholder-only inputs, icon submit button, locked zoom",
		Versions: map[int]PageVersion{
			1: {
				Headers: serverHeaders,
				Defects: []string{"label", "button-name", "meta-viewport", "duplicate-id"},
				HTML: `<!DOCTYPE html>
<html lang="en">
<head>
    <title>Sign up</title>
    <meta name="viewport" content="width=device-width, initial-scale=1, user-scalable=no">
</head>
<body>
    <main>
        <h1>Create an account</h1>
        <form action="/signup" method="post">
            <input type="email" name="email" id="field" placeholder="Email">
            <input type="password" name="password" id="field" placeholder="Password">
            <select name="country"><option>Germany</option><option>France</option></select>
            <input type="hidden" name="csrf" value="abc123">
            <button type="submit"><span class="icon-arrow"></span></button>
        </form>
    </main>
</body>
</html>`,
			},
			2: {
				Headers: serverHeaders,
				HTML: `<!DOCTYPE html>
<html lang="en">
<head>
    <title>Sign up</title>
    <meta name="viewport" content="width=device-width, initial-scale=1">
</head>
<body>
    <main>
        <h1>Create an account</h1>
        <form action="/signup" method="post">
            <label for="email">Email</label>
            <input type="email" name="email" id="email">
            <label for="password">Password</label>
            <input type="password" name="password" id="password">
            <label>Country <select name="country"><option>Germany</option><option>France</option></select></label>
            <input type="hidden" name="csrf" value="abc123">
            <button type="submit">Sign up</button>
        </form>
    </main>
</body>
</html>`,
			},
		},
	}
}

// ===== MEDIA =====
func mediaPage() PageDefinition {
	return PageDefinition{
		Path:        "/media",
		Description: "Media page: autoplaying video and an untitled embedded map",
		Versions: map[int]PageVersion{
			1: {
				Headers: serverHeaders,
				Defects: []string{"no-autoplay-audio", "frame-title", "document-title"},
				HTML: `<!DOCTYPE html>
<html lang="en">
<head>
    <title></title>
</head>
<body>
    <main>
        <h1>Our store</h1>
        <video src="/static/tour.mp4" autoplay></video>
        <iframe src="https://maps.example.com/embed?q=store"></iframe>
    </main>
</body>
</html>`,
			},
			2: {
				Headers: serverHeaders,
				HTML: `<!DOCTYPE html>
<html lang="en">
<head>
    <title>Visit our store</title>
</head>
<body>
    <main>
        <h1>Our store</h1>
        <video src="/static/tour.mp4" autoplay muted controls></video>
        <iframe src="https://maps.example.com/embed?q=store" title="Store location map"></iframe>
    </main>
</body>
</html>`,
			},
		},
	}
}

// ===== PRODUCTS =====
func productsPage() PageDefinition {
	return PageDefinition{
		Path:        "/products",
		Description: "Product grid: images without alt text and 'add' buttons without names",
		Versions: map[int]PageVersion{
			1: {
				Headers: serverHeaders,
				Defects: []string{"image-alt", "button-name"},
				HTML: `<!DOCTYPE html>
<html lang="en">
<head>
    <title>Products</title>
    <script src="https://cdn.example.com/react-18.2.0.production.min.js"></script>
</head>
<body>
    <main>
        <h1>Products</h1>
        <ul class="grid">
            <li><img src="/static/mug.jpg"><button class="add"></button></li>
            <li><img src="/static/shirt.jpg"><button class="add"></button></li>
            <li><img src="/static/poster.jpg"><button class="add"></button></li>
        </ul>
    </main>
</body>
</html>`,
			},
			2: {
				Headers: serverHeaders,
				HTML: `<!DOCTYPE html>
<html lang="en">
<head>
    <title>Products</title>
    <script src="https://cdn.example.com/react-18.2.0.production.min.js"></script>
</head>
<body>
    <main>
        <h1>Products</h1>
        <ul class="grid">
            <li><img src="/static/mug.jpg" alt="Coffee mug"><button class="add">Add mug to cart</button></li>
            <li><img src="/static/shirt.jpg" alt="T-shirt"><button class="add">Add T-shirt to cart</button></li>
            <li><img src="/static/poster.jpg" alt="Poster"><button class="add">Add poster to cart</button></li>
        </ul>
    </main>
</body>
</html>`,
			},
		},
	}
}
